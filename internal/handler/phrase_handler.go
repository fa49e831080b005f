package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/callpanel-api/internal/dto"
	"github.com/noah-isme/callpanel-api/internal/models"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
	"github.com/noah-isme/callpanel-api/pkg/response"
)

type phraseService interface {
	List(ctx context.Context, unitID string) ([]models.CommercialPhrase, error)
	Get(ctx context.Context, id string) (*models.CommercialPhrase, error)
	Create(ctx context.Context, unitID string, req dto.UpsertPhraseRequest) (*models.CommercialPhrase, []string, error)
	Update(ctx context.Context, id string, req dto.UpsertPhraseRequest) (*models.CommercialPhrase, []string, error)
	Delete(ctx context.Context, id string) error
}

type activePhraseLister interface {
	Now() time.Time
	ActivePhrases(ctx context.Context, unitID string, now time.Time) ([]models.CommercialPhrase, error)
}

// PhraseHandler exposes commercial phrase endpoints.
type PhraseHandler struct {
	service phraseService
	active  activePhraseLister
}

// NewPhraseHandler builds the handler.
func NewPhraseHandler(svc phraseService, active activePhraseLister) *PhraseHandler {
	return &PhraseHandler{service: svc, active: active}
}

// List godoc
// @Summary List phrases of a unit
// @Tags Phrases
// @Produce json
// @Param unitId path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Router /units/{unitId}/phrases [get]
func (h *PhraseHandler) List(c *gin.Context) {
	items, err := h.service.List(c.Request.Context(), c.Param("unitId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Active godoc
// @Summary List phrases showing right now
// @Tags Phrases
// @Produce json
// @Param unitId path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Router /units/{unitId}/phrases/active [get]
func (h *PhraseHandler) Active(c *gin.Context) {
	now := h.active.Now()
	items, err := h.active.ActivePhrases(c.Request.Context(), c.Param("unitId"), now)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"evaluated_at": now})
}

// Create godoc
// @Summary Create a phrase
// @Tags Phrases
// @Accept json
// @Produce json
// @Param unitId path string true "Unit ID"
// @Param payload body dto.UpsertPhraseRequest true "Phrase payload"
// @Success 201 {object} response.Envelope
// @Router /units/{unitId}/phrases [post]
func (h *PhraseHandler) Create(c *gin.Context) {
	var req dto.UpsertPhraseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid phrase payload"))
		return
	}
	phrase, warnings, err := h.service.Create(c.Request.Context(), c.Param("unitId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, phrase, response.WithWarnings(warnings))
}

// Update godoc
// @Summary Update a phrase
// @Tags Phrases
// @Accept json
// @Produce json
// @Param id path string true "Phrase ID"
// @Param payload body dto.UpsertPhraseRequest true "Phrase payload"
// @Success 200 {object} response.Envelope
// @Router /phrases/{id} [put]
func (h *PhraseHandler) Update(c *gin.Context) {
	var req dto.UpsertPhraseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid phrase payload"))
		return
	}
	if !h.authorize(c) {
		return
	}
	phrase, warnings, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, phrase, nil, response.WithWarnings(warnings))
}

// Delete godoc
// @Summary Delete a phrase
// @Tags Phrases
// @Param id path string true "Phrase ID"
// @Success 204
// @Router /phrases/{id} [delete]
func (h *PhraseHandler) Delete(c *gin.Context) {
	if !h.authorize(c) {
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *PhraseHandler) authorize(c *gin.Context) bool {
	phrase, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return false
	}
	if !requireUnitScope(c, phrase.UnitID) {
		return false
	}
	return true
}
