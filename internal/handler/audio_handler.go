package handler

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/callpanel-api/internal/dto"
	"github.com/noah-isme/callpanel-api/internal/models"
	"github.com/noah-isme/callpanel-api/internal/service"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
	"github.com/noah-isme/callpanel-api/pkg/response"
	"github.com/noah-isme/callpanel-api/pkg/storage"
)

type audioCacheService interface {
	Resolve(ctx context.Context, req service.AudioRequest) (*models.AudioHandle, error)
	Invalidate(ctx context.Context, olderThanDays int, category models.AudioCacheCategory) (*models.AudioInvalidateResult, error)
	Clear(ctx context.Context, category models.AudioCacheCategory) (*models.AudioInvalidateResult, error)
	Stats(ctx context.Context) (*models.AudioCacheStats, error)
}

// objectOpener serves locally stored objects. It is nil when audio lives in a bucket.
type objectOpener interface {
	Open(key string) (*os.File, error)
}

type tokenParser interface {
	Parse(token string, allowExpired bool) (string, time.Time, error)
}

// AudioHandler exposes audio cache endpoints.
type AudioHandler struct {
	service          audioCacheService
	files            objectOpener
	signer           tokenParser
	validator        *validator.Validate
	defaultRetention int
}

// NewAudioHandler builds the handler. files and signer may be nil when objects are not served by the API.
func NewAudioHandler(svc audioCacheService, files objectOpener, signer tokenParser, validate *validator.Validate, defaultRetentionDays int) *AudioHandler {
	if validate == nil {
		validate = service.NewValidator()
	}
	if defaultRetentionDays <= 0 {
		defaultRetentionDays = 7
	}
	return &AudioHandler{service: svc, files: files, signer: signer, validator: validate, defaultRetention: defaultRetentionDays}
}

// Resolve godoc
// @Summary Resolve text to cached audio, synthesizing on a miss
// @Tags Audio
// @Accept json
// @Produce json
// @Param payload body dto.ResolveAudioRequest true "Resolve payload"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /audio/resolve [post]
func (h *AudioHandler) Resolve(c *gin.Context) {
	var req dto.ResolveAudioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid resolve payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid resolve payload"))
		return
	}
	handle, err := h.service.Resolve(c.Request.Context(), service.AudioRequest{
		Text:         req.Text,
		Voice:        req.Voice,
		SpeakingRate: req.SpeakingRate,
		Category:     models.AudioCacheCategory(req.Category),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, handle, nil)
}

// Stats godoc
// @Summary Summarise cached audio per category
// @Tags Audio
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /audio/cache/stats [get]
func (h *AudioHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Invalidate godoc
// @Summary Evict temporary audio older than a number of days
// @Tags Audio
// @Accept json
// @Produce json
// @Param payload body dto.InvalidateCacheRequest false "Invalidate payload"
// @Success 200 {object} response.Envelope
// @Router /audio/cache/invalidate [post]
func (h *AudioHandler) Invalidate(c *gin.Context) {
	var req dto.InvalidateCacheRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid invalidate payload"))
			return
		}
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invalidate payload"))
		return
	}
	days := h.defaultRetention
	if req.OlderThanDays != nil {
		days = *req.OlderThanDays
	}
	result, err := h.service.Invalidate(c.Request.Context(), days, models.AudioCacheCategory(strings.ToLower(req.Category)))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Clear godoc
// @Summary Delete every cached object of a category
// @Tags Audio
// @Produce json
// @Param category path string true "permanent or temporary"
// @Success 200 {object} response.Envelope
// @Router /audio/cache/{category} [delete]
func (h *AudioHandler) Clear(c *gin.Context) {
	category := models.AudioCacheCategory(strings.ToLower(c.Param("category")))
	result, err := h.service.Clear(c.Request.Context(), category)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// File godoc
// @Summary Download a locally stored audio object through a signed link
// @Tags Audio
// @Produce audio/mpeg
// @Param token path string true "Signed token"
// @Success 200
// @Router /audio/files/{token} [get]
func (h *AudioHandler) File(c *gin.Context) {
	if h.files == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "audio files are not served by this instance"))
		return
	}
	key := strings.TrimPrefix(c.Param("token"), "/")
	if h.signer != nil {
		parsed, _, err := h.signer.Parse(key, false)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid or expired audio link"))
			return
		}
		key = parsed
	}
	file, err := h.files.Open(key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "audio file not found"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open audio file"))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat audio file"))
		return
	}
	c.Header("Content-Type", storage.ContentTypeFor(key))
	c.Header("Cache-Control", "private, max-age=86400")
	http.ServeContent(c.Writer, c.Request, path.Base(key), info.ModTime(), file)
}
