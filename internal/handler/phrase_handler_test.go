package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/callpanel-api/internal/dto"
	"github.com/noah-isme/callpanel-api/internal/models"
)

type phraseServiceMock struct {
	phrase  *models.CommercialPhrase
	created dto.UpsertPhraseRequest
	deleted string
}

func (m *phraseServiceMock) List(context.Context, string) ([]models.CommercialPhrase, error) {
	return []models.CommercialPhrase{*m.phrase}, nil
}

func (m *phraseServiceMock) Get(context.Context, string) (*models.CommercialPhrase, error) {
	return m.phrase, nil
}

func (m *phraseServiceMock) Create(_ context.Context, _ string, req dto.UpsertPhraseRequest) (*models.CommercialPhrase, []string, error) {
	m.created = req
	return m.phrase, []string{"no weekdays selected"}, nil
}

func (m *phraseServiceMock) Update(context.Context, string, dto.UpsertPhraseRequest) (*models.CommercialPhrase, []string, error) {
	return m.phrase, nil, nil
}

func (m *phraseServiceMock) Delete(_ context.Context, id string) error {
	m.deleted = id
	return nil
}

func TestPhraseHandlerCreate(t *testing.T) {
	svc := &phraseServiceMock{phrase: &models.CommercialPhrase{ID: "p1", UnitID: "unit-a"}}
	h := NewPhraseHandler(svc, &schedulerMock{})

	c, w := newContext(http.MethodPost, "/units/unit-a/phrases", `{"title":"Pharmacy","text":"Aberta","display_order":3,"start_time":"07:00","end_time":"22:00"}`, adminClaims())
	c.Params = gin.Params{{Key: "unitId", Value: "unit-a"}}
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 3, svc.created.DisplayOrder)
	assert.Equal(t, "07:00", svc.created.StartTime)
	assert.Contains(t, w.Body.String(), "no weekdays selected")
}

func TestPhraseHandlerDeleteChecksUnit(t *testing.T) {
	svc := &phraseServiceMock{phrase: &models.CommercialPhrase{ID: "p1", UnitID: "unit-b"}}
	h := NewPhraseHandler(svc, &schedulerMock{})

	c, w := newContext(http.MethodDelete, "/phrases/p1", "", adminClaims("unit-a"))
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	h.Delete(c)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, svc.deleted)

	c, _ = newContext(http.MethodDelete, "/phrases/p1", "", adminClaims("unit-b"))
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	h.Delete(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, "p1", svc.deleted)
}

func TestPhraseHandlerActive(t *testing.T) {
	h := NewPhraseHandler(&phraseServiceMock{}, &schedulerMock{})
	c, w := newContext(http.MethodGet, "/units/unit-a/phrases/active", "", adminClaims())
	c.Params = gin.Params{{Key: "unitId", Value: "unit-a"}}
	h.Active(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"evaluated_at"`)
}
