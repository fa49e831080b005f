package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/callpanel-api/internal/models"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
	"github.com/noah-isme/callpanel-api/pkg/notify"
	"github.com/noah-isme/callpanel-api/pkg/realtime"
)

type schedulerAnnouncementRepository interface {
	ListActiveByUnit(ctx context.Context, unitID string) ([]models.ScheduledAnnouncement, error)
	GetByID(ctx context.Context, id string) (*models.ScheduledAnnouncement, error)
	MarkPlayed(ctx context.Context, id string, expected *time.Time, playedAt time.Time) (bool, error)
	ReleasePlayed(ctx context.Context, id string, claimed time.Time, previous *time.Time) (bool, error)
	ResetLastPlayed(ctx context.Context, id string) (bool, error)
	SetAudio(ctx context.Context, id string, cacheKey, url *string, generatedAt *time.Time) error
}

type schedulerPhraseRepository interface {
	ListByUnit(ctx context.Context, unitID string, activeOnly bool) ([]models.CommercialPhrase, error)
}

type audioResolver interface {
	Resolve(ctx context.Context, req AudioRequest) (*models.AudioHandle, error)
}

type evaluationKicker interface {
	Kick(unitID string) bool
}

// PlayPayload is delivered to displays with announcement.play and announcement.replay events.
type PlayPayload struct {
	AnnouncementID string `json:"announcement_id"`
	Title          string `json:"title"`
	Text           string `json:"text"`
	AudioURL       string `json:"audio_url,omitempty"`
	ContentType    string `json:"content_type,omitempty"`
	RepeatCount    int    `json:"repeat_count"`
}

// SchedulerService decides which announcements and phrases are due and fires announcements.
type SchedulerService struct {
	announcements schedulerAnnouncementRepository
	phrases       schedulerPhraseRepository
	audio         audioResolver
	publisher     realtime.Publisher
	metrics       *MetricsService
	alerts        notify.Notifier
	logger        *zap.Logger
	location      *time.Location
	kicker        evaluationKicker
	now           func() time.Time
}

// NewSchedulerService constructs the scheduler. A nil location means UTC.
func NewSchedulerService(announcements schedulerAnnouncementRepository, phrases schedulerPhraseRepository, audio audioResolver, publisher realtime.Publisher, metrics *MetricsService, alerts notify.Notifier, logger *zap.Logger, location *time.Location) *SchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	return &SchedulerService{
		announcements: announcements,
		phrases:       phrases,
		audio:         audio,
		publisher:     publisher,
		metrics:       metrics,
		alerts:        alerts,
		logger:        logger,
		location:      location,
		now:           time.Now,
	}
}

// SetKicker registers the component asked to re-evaluate a unit after a forced replay.
func (s *SchedulerService) SetKicker(k evaluationKicker) {
	s.kicker = k
}

// Location returns the zone schedules are evaluated in.
func (s *SchedulerService) Location() *time.Location {
	return s.location
}

// Now returns the current instant in the scheduling zone.
func (s *SchedulerService) Now() time.Time {
	return s.now().In(s.location)
}

// Evaluate explains whether the announcement is due at now.
func (s *SchedulerService) Evaluate(a models.ScheduledAnnouncement, now time.Time) models.DueCheck {
	return EvaluateAnnouncement(a, now.In(s.location))
}

// DueAnnouncements returns the unit's due announcements, longest-waiting first.
func (s *SchedulerService) DueAnnouncements(ctx context.Context, unitID string, now time.Time) ([]models.ScheduledAnnouncement, error) {
	rows, err := s.announcements.ListActiveByUnit(ctx, unitID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcements")
	}
	local := now.In(s.location)
	due := make([]models.ScheduledAnnouncement, 0, len(rows))
	for _, a := range rows {
		check := EvaluateAnnouncement(a, local)
		if check.Reason == models.DueReasonInvalidSchedule {
			s.logger.Warn("skipping malformed announcement", zap.String("announcement_id", a.ID), zap.Strings("problems", a.Problems()))
			continue
		}
		if check.Due {
			due = append(due, a)
		}
	}
	sortDue(due)
	return due, nil
}

// DueCandidates is DueAnnouncements projected to the fields a caller needs to pick among them.
func (s *SchedulerService) DueCandidates(ctx context.Context, unitID string, now time.Time) ([]models.DueCandidate, error) {
	due, err := s.DueAnnouncements(ctx, unitID, now)
	if err != nil {
		return nil, err
	}
	candidates := make([]models.DueCandidate, 0, len(due))
	for _, a := range due {
		candidates = append(candidates, models.DueCandidate{
			AnnouncementID:  a.ID,
			Title:           a.Title,
			LastPlayedAt:    a.LastPlayedAt,
			CreatedAt:       a.CreatedAt,
			IntervalMinutes: a.IntervalMinutes,
		})
	}
	return candidates, nil
}

// Trigger plays at most one due announcement of the unit. The playback timestamp is claimed with a
// compare-and-set before audio is resolved, so two evaluators racing on the same stale read cannot
// both fire.
func (s *SchedulerService) Trigger(ctx context.Context, unitID string) (*models.TriggerResult, error) {
	now := s.Now()
	due, err := s.DueAnnouncements(ctx, unitID, now)
	if err != nil {
		return nil, err
	}
	result := &models.TriggerResult{UnitID: unitID, Candidates: len(due), EvaluatedAt: now}

	for i := range due {
		announcement := due[i]
		claimed, err := s.announcements.MarkPlayed(ctx, announcement.ID, announcement.LastPlayedAt, now)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record playback")
		}
		if !claimed {
			s.logger.Debug("announcement claimed elsewhere", zap.String("announcement_id", announcement.ID))
			continue
		}
		previous := announcement.LastPlayedAt
		playedAt := now
		announcement.LastPlayedAt = &playedAt
		result.Announcement = &announcement
		s.fire(ctx, result)
		if result.Status == models.TriggerAudioUnavailable {
			s.releaseClaim(ctx, &announcement, now, previous)
		}
		s.metrics.RecordTrigger(result.Status)
		return result, nil
	}

	result.Status = models.TriggerNothingDue
	if len(due) > 0 {
		result.Message = "due announcements were already played by another evaluator"
	}
	s.metrics.RecordTrigger(result.Status)
	return result, nil
}

func (s *SchedulerService) fire(ctx context.Context, result *models.TriggerResult) {
	announcement := result.Announcement
	payload := PlayPayload{
		AnnouncementID: announcement.ID,
		Title:          announcement.Title,
		Text:           announcement.Text,
		RepeatCount:    announcement.RepeatCount,
	}

	handle, err := s.audio.Resolve(ctx, AudioRequest{Text: announcement.Text, Category: models.AudioCachePermanent})
	if err != nil {
		result.Status = models.TriggerAudioUnavailable
		result.Message = appErrors.FromError(err).Message
		s.logger.Warn("announcement audio unavailable",
			zap.String("announcement_id", announcement.ID),
			zap.String("unit_id", result.UnitID),
			zap.Error(err))
		if s.alerts != nil {
			msg := fmt.Sprintf("Announcement %q (unit %s) postponed, audio unavailable: %s", announcement.Title, result.UnitID, result.Message)
			if alertErr := s.alerts.Notify(ctx, msg); alertErr != nil {
				s.logger.Warn("operator alert failed", zap.Error(alertErr))
			}
		}
		return
	}

	result.Status = models.TriggerPlayed
	result.Audio = handle
	payload.AudioURL = handle.URL
	payload.ContentType = handle.ContentType
	if announcement.AudioCacheKey == nil || *announcement.AudioCacheKey != handle.CacheKey {
		generatedAt := s.now().UTC()
		if err := s.announcements.SetAudio(ctx, announcement.ID, &handle.CacheKey, &handle.URL, &generatedAt); err != nil {
			s.logger.Warn("record announcement audio failed", zap.String("announcement_id", announcement.ID), zap.Error(err))
		} else {
			announcement.AudioCacheKey = &handle.CacheKey
			announcement.AudioURL = &handle.URL
			announcement.AudioGeneratedAt = &generatedAt
		}
	}

	s.publish(ctx, result.UnitID, realtime.EventAnnouncementPlay, payload)
	s.logger.Info("announcement triggered",
		zap.String("announcement_id", announcement.ID),
		zap.String("unit_id", result.UnitID),
		zap.String("status", string(result.Status)))
}

// releaseClaim restores last_played_at after a failed playback so the next tick retries. The
// compare-and-set leaves the row alone if anything changed it since the claim.
func (s *SchedulerService) releaseClaim(ctx context.Context, announcement *models.ScheduledAnnouncement, claimed time.Time, previous *time.Time) {
	released, err := s.announcements.ReleasePlayed(ctx, announcement.ID, claimed, previous)
	if err != nil {
		s.logger.Warn("release playback claim failed", zap.String("announcement_id", announcement.ID), zap.Error(err))
		return
	}
	if released {
		announcement.LastPlayedAt = previous
	}
}

// ForceReplay clears the interval gate of an announcement and asks for an immediate re-evaluation.
// The other window predicates still apply.
func (s *SchedulerService) ForceReplay(ctx context.Context, announcementID string) (*models.ScheduledAnnouncement, error) {
	announcement, err := s.announcements.GetByID(ctx, announcementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	ok, err := s.announcements.ResetLastPlayed(ctx, announcementID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset playback")
	}
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
	}
	announcement.LastPlayedAt = nil

	s.publish(ctx, announcement.UnitID, realtime.EventAnnouncementReplay, PlayPayload{
		AnnouncementID: announcement.ID,
		Title:          announcement.Title,
		Text:           announcement.Text,
		RepeatCount:    announcement.RepeatCount,
	})
	if s.kicker != nil && !s.kicker.Kick(announcement.UnitID) {
		s.logger.Warn("re-evaluation request dropped", zap.String("unit_id", announcement.UnitID))
	}
	return announcement, nil
}

// ActivePhrases returns the unit's phrases due at now in display order.
func (s *SchedulerService) ActivePhrases(ctx context.Context, unitID string, now time.Time) ([]models.CommercialPhrase, error) {
	rows, err := s.phrases.ListByUnit(ctx, unitID, true)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load phrases")
	}
	local := now.In(s.location)
	active := make([]models.CommercialPhrase, 0, len(rows))
	for _, p := range rows {
		if IsPhraseDue(p, local) {
			active = append(active, p)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].DisplayOrder != active[j].DisplayOrder {
			return active[i].DisplayOrder < active[j].DisplayOrder
		}
		return active[i].ID < active[j].ID
	})
	return active, nil
}

func (s *SchedulerService) publish(ctx context.Context, unitID, eventType string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	topic := realtime.UnitTopic(unitID)
	event := realtime.Event{Type: eventType, Topic: topic, Payload: payload, OccurredAt: s.now().UTC()}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("publish event failed", zap.String("type", eventType), zap.String("topic", topic), zap.Error(err))
	}
}
