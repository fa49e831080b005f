package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/callpanel-api/internal/models"
)

func TestPhraseRepositoryListByUnitActiveOnly(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPhraseRepository(db)
	rows := sqlmock.NewRows([]string{"id", "unit_id", "title", "text", "start_time", "end_time", "weekdays", "valid_from", "valid_until", "is_active", "display_order", "created_at", "updated_at"}).
		AddRow("p1", "u1", "Farmácia", "Farmácia aberta até 20h", "07:00:00", "20:00:00", "{0,1,2,3,4,5,6}", nil, nil, true, 1, time.Now(), time.Now())
	mock.ExpectQuery("(?s)SELECT id, unit_id, title.* FROM commercial_phrases WHERE unit_id = \\$1 AND is_active = TRUE ORDER BY display_order ASC, id ASC").
		WithArgs("u1").
		WillReturnRows(rows)

	result, err := repo.ListByUnit(context.Background(), "u1", true)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, 1, result[0].DisplayOrder)
	assert.Len(t, result[0].Weekdays, 7)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPhraseRepositoryUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPhraseRepository(db)
	mock.ExpectExec("UPDATE commercial_phrases SET title").
		WithArgs("Farmácia", "Aberta", "07:00:00", "20:00:00", "{1}", nil, nil, true, 3, sqlmock.AnyArg(), "p1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	phrase := &models.CommercialPhrase{
		ID: "p1", Title: "Farmácia", Text: "Aberta", DisplayOrder: 3,
		Schedule: models.Schedule{StartTime: 7 * 60, EndTime: 20 * 60, Weekdays: models.Weekdays{1}, IsActive: true},
	}
	require.NoError(t, repo.Update(context.Background(), phrase))
	assert.NoError(t, mock.ExpectationsWereMet())
}
