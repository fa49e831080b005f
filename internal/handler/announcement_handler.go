package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/callpanel-api/internal/dto"
	"github.com/noah-isme/callpanel-api/internal/models"
	"github.com/noah-isme/callpanel-api/internal/service"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
	"github.com/noah-isme/callpanel-api/pkg/response"
)

type announcementService interface {
	List(ctx context.Context, req service.AnnouncementListRequest) ([]models.AnnouncementView, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.AnnouncementView, error)
	Create(ctx context.Context, unitID string, req dto.UpsertAnnouncementRequest) (*models.AnnouncementView, error)
	Update(ctx context.Context, id string, req dto.UpsertAnnouncementRequest) (*models.AnnouncementView, error)
	Delete(ctx context.Context, id string) error
}

type announcementScheduler interface {
	Now() time.Time
	DueCandidates(ctx context.Context, unitID string, now time.Time) ([]models.DueCandidate, error)
	Trigger(ctx context.Context, unitID string) (*models.TriggerResult, error)
	ForceReplay(ctx context.Context, id string) (*models.ScheduledAnnouncement, error)
}

type announcementAudioGenerator interface {
	GenerateForAnnouncement(ctx context.Context, announcementID string) (*models.ScheduledAnnouncement, error)
}

// AnnouncementHandler exposes scheduled announcement endpoints.
type AnnouncementHandler struct {
	service   announcementService
	scheduler announcementScheduler
	audio     announcementAudioGenerator
}

// NewAnnouncementHandler builds the handler.
func NewAnnouncementHandler(svc announcementService, scheduler announcementScheduler, audio announcementAudioGenerator) *AnnouncementHandler {
	return &AnnouncementHandler{service: svc, scheduler: scheduler, audio: audio}
}

// List godoc
// @Summary List announcements of a unit
// @Tags Announcements
// @Produce json
// @Param unitId path string true "Unit ID"
// @Param active query bool false "Only active announcements"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /units/{unitId}/announcements [get]
func (h *AnnouncementHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	active, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))
	items, pagination, err := h.service.List(c.Request.Context(), service.AnnouncementListRequest{
		UnitID:     c.Param("unitId"),
		ActiveOnly: active,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Create godoc
// @Summary Create an announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Param unitId path string true "Unit ID"
// @Param payload body dto.UpsertAnnouncementRequest true "Announcement payload"
// @Success 201 {object} response.Envelope
// @Router /units/{unitId}/announcements [post]
func (h *AnnouncementHandler) Create(c *gin.Context) {
	var req dto.UpsertAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid announcement payload"))
		return
	}
	view, err := h.service.Create(c.Request.Context(), c.Param("unitId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view, response.WithWarnings(view.Warnings))
}

// Get godoc
// @Summary Get an announcement
// @Tags Announcements
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id} [get]
func (h *AnnouncementHandler) Get(c *gin.Context) {
	view, ok := h.load(c)
	if !ok {
		return
	}
	response.JSON(c, http.StatusOK, view, nil, response.WithWarnings(view.Warnings))
}

// Update godoc
// @Summary Update an announcement
// @Tags Announcements
// @Accept json
// @Produce json
// @Param id path string true "Announcement ID"
// @Param payload body dto.UpsertAnnouncementRequest true "Announcement payload"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id} [put]
func (h *AnnouncementHandler) Update(c *gin.Context) {
	var req dto.UpsertAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid announcement payload"))
		return
	}
	if _, ok := h.load(c); !ok {
		return
	}
	view, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil, response.WithWarnings(view.Warnings))
}

// Delete godoc
// @Summary Delete an announcement and its cached audio
// @Tags Announcements
// @Param id path string true "Announcement ID"
// @Success 204
// @Router /announcements/{id} [delete]
func (h *AnnouncementHandler) Delete(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// GenerateAudio godoc
// @Summary Generate permanent audio for an announcement now
// @Tags Announcements
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id}/audio [post]
func (h *AnnouncementHandler) GenerateAudio(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	announcement, err := h.audio.GenerateForAnnouncement(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcement, nil)
}

// Replay godoc
// @Summary Make an announcement due again immediately
// @Tags Announcements
// @Produce json
// @Param id path string true "Announcement ID"
// @Success 200 {object} response.Envelope
// @Router /announcements/{id}/replay [post]
func (h *AnnouncementHandler) Replay(c *gin.Context) {
	if _, ok := h.load(c); !ok {
		return
	}
	announcement, err := h.scheduler.ForceReplay(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, announcement, nil)
}

// Due godoc
// @Summary List announcements due now, in play order
// @Tags Announcements
// @Produce json
// @Param unitId path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Router /units/{unitId}/announcements/due [get]
func (h *AnnouncementHandler) Due(c *gin.Context) {
	now := h.scheduler.Now()
	candidates, err := h.scheduler.DueCandidates(c.Request.Context(), c.Param("unitId"), now)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidates, nil, map[string]interface{}{"evaluated_at": now})
}

// Trigger godoc
// @Summary Evaluate the unit now and play the next due announcement
// @Tags Announcements
// @Produce json
// @Param unitId path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Router /units/{unitId}/announcements/trigger [post]
func (h *AnnouncementHandler) Trigger(c *gin.Context) {
	result, err := h.scheduler.Trigger(c.Request.Context(), c.Param("unitId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// load fetches the announcement named by the id parameter and checks the caller's unit scope.
func (h *AnnouncementHandler) load(c *gin.Context) (*models.AnnouncementView, bool) {
	view, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	if !requireUnitScope(c, view.UnitID) {
		return nil, false
	}
	return view, true
}
