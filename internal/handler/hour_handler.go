package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/callpanel-api/internal/models"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
	"github.com/noah-isme/callpanel-api/pkg/response"
)

type hourAnnouncer interface {
	Compose(hour, minute int) ([]models.Fragment, error)
	CheckFragments(ctx context.Context) models.FragmentReport
	AnnounceNow(ctx context.Context, unitID string) (*models.PlaybackReport, error)
}

// HourHandler exposes the offline hour announcement endpoints.
type HourHandler struct {
	announcer hourAnnouncer
}

// NewHourHandler builds the handler.
func NewHourHandler(announcer hourAnnouncer) *HourHandler {
	return &HourHandler{announcer: announcer}
}

// Compose godoc
// @Summary Show the fragment sequence for a time
// @Tags Hours
// @Produce json
// @Param hour query int true "Hour 0-23"
// @Param minute query int true "Minute 0-59"
// @Success 200 {object} response.Envelope
// @Router /audio/hours/compose [get]
func (h *HourHandler) Compose(c *gin.Context) {
	hour, err := strconv.Atoi(c.Query("hour"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "hour must be an integer"))
		return
	}
	minute, err := strconv.Atoi(c.DefaultQuery("minute", "0"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "minute must be an integer"))
		return
	}
	sequence, err := h.announcer.Compose(hour, minute)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sequence, nil)
}

// Check godoc
// @Summary Probe every hour and minute fragment
// @Tags Hours
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /audio/hours/check [get]
func (h *HourHandler) Check(c *gin.Context) {
	report := h.announcer.CheckFragments(c.Request.Context())
	response.JSON(c, http.StatusOK, report, nil)
}

// Announce godoc
// @Summary Speak the current time on the unit displays
// @Tags Hours
// @Produce json
// @Param unitId path string true "Unit ID"
// @Success 200 {object} response.Envelope
// @Failure 424 {object} response.Envelope
// @Router /units/{unitId}/hour-announcement [post]
func (h *HourHandler) Announce(c *gin.Context) {
	report, err := h.announcer.AnnounceNow(c.Request.Context(), c.Param("unitId"))
	if err != nil {
		if report != nil {
			appErr := appErrors.FromError(err)
			response.JSON(c, appErr.Status, report, nil, map[string]interface{}{"error": appErr})
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
