package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/callpanel-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	return sqlxDB, mock, func() {
		sqlxDB.Close()
		db.Close()
	}
}

var announcementRowColumns = []string{"id", "unit_id", "title", "text", "start_time", "end_time", "weekdays", "valid_from", "valid_until", "is_active",
	"interval_minutes", "repeat_count", "audio_cache_key", "audio_url", "audio_generated_at", "last_played_at", "created_at", "updated_at"}

func TestAnnouncementRepositoryListActiveByUnitScansSchedule(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAnnouncementRepository(db)
	validFrom := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	lastPlayed := time.Date(2026, 3, 4, 7, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(announcementRowColumns).
		AddRow("a1", "u1", "Vacinação", "Campanha de vacinação", "08:00:00", "18:00:00", "{1,2,3,4,5}", validFrom, nil, true,
			60, 1, nil, nil, nil, lastPlayed, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, unit_id, title").
		WithArgs("u1").
		WillReturnRows(rows)

	result, err := repo.ListActiveByUnit(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, result, 1)
	got := result[0]
	assert.Equal(t, models.TimeOfDay(8*60), got.StartTime)
	assert.Equal(t, models.TimeOfDay(18*60), got.EndTime)
	assert.Equal(t, models.Weekdays{1, 2, 3, 4, 5}, got.Weekdays)
	require.NotNil(t, got.ValidFrom)
	assert.Equal(t, "2026-01-01", got.ValidFrom.String())
	assert.Nil(t, got.ValidUntil)
	require.NotNil(t, got.LastPlayedAt)
	assert.True(t, lastPlayed.Equal(*got.LastPlayedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryListPaginates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAnnouncementRepository(db)
	mock.ExpectQuery("(?s)SELECT id, unit_id, title.* FROM scheduled_announcements WHERE unit_id = \\$1 AND is_active = TRUE ORDER BY title ASC, id ASC LIMIT 10 OFFSET 10").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(announcementRowColumns))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM scheduled_announcements WHERE unit_id = $1 AND is_active = TRUE")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	rows, total, err := repo.List(context.Background(), models.AnnouncementFilter{UnitID: "u1", ActiveOnly: true, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAnnouncementRepository(db)
	mock.ExpectExec("INSERT INTO scheduled_announcements").
		WithArgs(sqlmock.AnyArg(), "u1", "Vacinação", "Campanha", "08:00:00", "18:00:00", "{1,2}", nil, nil, true, 30, 2, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ann := &models.ScheduledAnnouncement{
		UnitID: "u1", Title: "Vacinação", Text: "Campanha",
		Schedule:        models.Schedule{StartTime: 8 * 60, EndTime: 18 * 60, Weekdays: models.Weekdays{1, 2}, IsActive: true},
		IntervalMinutes: 30, RepeatCount: 2,
	}
	require.NoError(t, repo.Create(context.Background(), ann))
	assert.NotEmpty(t, ann.ID)
	assert.False(t, ann.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryMarkPlayedCompareAndSet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAnnouncementRepository(db)
	prev := time.Date(2026, 3, 4, 7, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	query := regexp.QuoteMeta("UPDATE scheduled_announcements SET last_played_at = $3\nWHERE id = $1 AND last_played_at IS NOT DISTINCT FROM $2")

	mock.ExpectExec(query).WithArgs("a1", prev, now).WillReturnResult(sqlmock.NewResult(0, 1))
	won, err := repo.MarkPlayed(context.Background(), "a1", &prev, now)
	require.NoError(t, err)
	assert.True(t, won)

	mock.ExpectExec(query).WithArgs("a1", nil, now).WillReturnResult(sqlmock.NewResult(0, 0))
	won, err = repo.MarkPlayed(context.Background(), "a1", nil, now)
	require.NoError(t, err)
	assert.False(t, won)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryReleasePlayed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAnnouncementRepository(db)
	prev := time.Date(2026, 3, 4, 7, 0, 0, 0, time.UTC)
	claimed := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	query := regexp.QuoteMeta("UPDATE scheduled_announcements SET last_played_at = $3\nWHERE id = $1 AND last_played_at = $2")

	mock.ExpectExec(query).WithArgs("a1", claimed, prev).WillReturnResult(sqlmock.NewResult(0, 1))
	released, err := repo.ReleasePlayed(context.Background(), "a1", claimed, &prev)
	require.NoError(t, err)
	assert.True(t, released)

	// A never-played announcement goes back to NULL; a row changed since the claim is left alone.
	mock.ExpectExec(query).WithArgs("a1", claimed, nil).WillReturnResult(sqlmock.NewResult(0, 0))
	released, err = repo.ReleasePlayed(context.Background(), "a1", claimed, nil)
	require.NoError(t, err)
	assert.False(t, released)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryResetLastPlayed(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAnnouncementRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE scheduled_announcements SET last_played_at = NULL WHERE id = $1")).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.ResetLastPlayed(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAnnouncementRepository(db)
	mock.ExpectQuery("SELECT id, unit_id").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryClearAudioByKey(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAnnouncementRepository(db)
	mock.ExpectExec("UPDATE scheduled_announcements SET audio_cache_key = NULL").
		WithArgs("k1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	affected, err := repo.ClearAudioByKey(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementRepositoryClearAllAudio(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAnnouncementRepository(db)
	mock.ExpectExec("UPDATE scheduled_announcements SET audio_cache_key = NULL.*WHERE audio_cache_key IS NOT NULL").
		WillReturnResult(sqlmock.NewResult(0, 5))

	affected, err := repo.ClearAllAudio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}
