package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/callpanel-api/internal/dto"
	"github.com/noah-isme/callpanel-api/internal/models"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
)

type announcementRepository interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.ScheduledAnnouncement, int, error)
	GetByID(ctx context.Context, id string) (*models.ScheduledAnnouncement, error)
	Create(ctx context.Context, announcement *models.ScheduledAnnouncement) error
	Update(ctx context.Context, announcement *models.ScheduledAnnouncement) error
	Delete(ctx context.Context, id string) error
}

type announcementAudio interface {
	DeleteAnnouncementAudio(ctx context.Context, announcement models.ScheduledAnnouncement) error
	AudioURL(ctx context.Context, cacheKey string) (string, bool, error)
}

type audioPrewarmer interface {
	EnqueueAnnouncement(announcementID string) error
}

// AnnouncementListRequest describes filters for listing announcements.
type AnnouncementListRequest struct {
	UnitID     string
	ActiveOnly bool
	Page       int
	PageSize   int
}

// AnnouncementService handles announcement workflows.
type AnnouncementService struct {
	repo      announcementRepository
	audio     announcementAudio
	prewarm   audioPrewarmer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAnnouncementService constructs the service. prewarm may be nil, in which case audio is
// generated lazily on the first trigger.
func NewAnnouncementService(repo announcementRepository, audio announcementAudio, prewarm audioPrewarmer, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerScheduleValidations(validate)
	return &AnnouncementService{repo: repo, audio: audio, prewarm: prewarm, validator: validate, logger: logger}
}

// List returns announcements of a unit with pagination.
func (s *AnnouncementService) List(ctx context.Context, req AnnouncementListRequest) ([]models.AnnouncementView, *models.Pagination, error) {
	filter := models.AnnouncementFilter{UnitID: req.UnitID, ActiveOnly: req.ActiveOnly, Page: req.Page, PageSize: req.PageSize}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	views := make([]models.AnnouncementView, 0, len(rows))
	for _, row := range rows {
		s.refreshAudioURL(ctx, &row)
		views = append(views, models.AnnouncementView{ScheduledAnnouncement: row, Warnings: announcementWarnings(row)})
	}
	return views, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns an announcement by id.
func (s *AnnouncementService) Get(ctx context.Context, id string) (*models.AnnouncementView, error) {
	announcement, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.refreshAudioURL(ctx, announcement)
	return &models.AnnouncementView{ScheduledAnnouncement: *announcement, Warnings: announcementWarnings(*announcement)}, nil
}

// refreshAudioURL replaces the stored audio link with a freshly signed one, since signed links
// expire. A reference to an evicted entry is dropped; lookup errors keep the stored link.
func (s *AnnouncementService) refreshAudioURL(ctx context.Context, announcement *models.ScheduledAnnouncement) {
	if s.audio == nil || announcement.AudioCacheKey == nil {
		return
	}
	url, found, err := s.audio.AudioURL(ctx, *announcement.AudioCacheKey)
	switch {
	case err != nil:
		s.logger.Warn("refresh announcement audio url failed", zap.String("announcement_id", announcement.ID), zap.Error(err))
	case !found:
		announcement.AudioURL = nil
	default:
		announcement.AudioURL = &url
	}
}

// Create validates and persists a new announcement, then schedules audio generation.
func (s *AnnouncementService) Create(ctx context.Context, unitID string, req dto.UpsertAnnouncementRequest) (*models.AnnouncementView, error) {
	if strings.TrimSpace(unitID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unit id is required")
	}
	announcement := &models.ScheduledAnnouncement{UnitID: unitID}
	warnings, err := s.apply(announcement, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	s.schedulePrewarm(announcement.ID)
	return &models.AnnouncementView{ScheduledAnnouncement: *announcement, Warnings: warnings}, nil
}

// Update replaces the editable fields. A text change invalidates the current audio.
func (s *AnnouncementService) Update(ctx context.Context, id string, req dto.UpsertAnnouncementRequest) (*models.AnnouncementView, error) {
	announcement, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	previousText := announcement.Text
	warnings, err := s.apply(announcement, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	if announcement.AudioCacheKey == nil || CacheKeyText(previousText) != CacheKeyText(announcement.Text) {
		s.schedulePrewarm(announcement.ID)
	}
	s.refreshAudioURL(ctx, announcement)
	return &models.AnnouncementView{ScheduledAnnouncement: *announcement, Warnings: warnings}, nil
}

// Delete removes an announcement together with its cached audio. Audio cleanup failures are
// logged and do not block the deletion.
func (s *AnnouncementService) Delete(ctx context.Context, id string) error {
	announcement, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if s.audio != nil {
		if err := s.audio.DeleteAnnouncementAudio(ctx, *announcement); err != nil {
			s.logger.Warn("delete announcement audio failed", zap.String("announcement_id", id), zap.Error(err))
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	return nil
}

func (s *AnnouncementService) load(ctx context.Context, id string) (*models.ScheduledAnnouncement, error) {
	announcement, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	return announcement, nil
}

func (s *AnnouncementService) apply(announcement *models.ScheduledAnnouncement, req dto.UpsertAnnouncementRequest) ([]string, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	schedule, warnings, err := buildSchedule(req.ScheduleInput)
	if err != nil {
		return nil, err
	}
	announcement.Title = strings.TrimSpace(req.Title)
	announcement.Text = strings.TrimSpace(req.Text)
	announcement.Schedule = schedule
	announcement.IntervalMinutes = req.IntervalMinutes
	announcement.RepeatCount = req.RepeatCount
	if announcement.RepeatCount == 0 {
		announcement.RepeatCount = 1
	}
	return warnings, nil
}

func (s *AnnouncementService) schedulePrewarm(id string) {
	if s.prewarm == nil {
		return
	}
	if err := s.prewarm.EnqueueAnnouncement(id); err != nil {
		s.logger.Warn("schedule audio generation failed", zap.String("announcement_id", id), zap.Error(err))
	}
}

func announcementWarnings(a models.ScheduledAnnouncement) []string {
	warnings := scheduleWarnings(a.Schedule)
	if problems := a.Problems(); len(problems) > 0 {
		warnings = append(warnings, problems...)
	}
	return warnings
}

// CacheKeyText normalizes text the way CacheKey does.
func CacheKeyText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
