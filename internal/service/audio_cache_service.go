package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/callpanel-api/internal/models"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
	"github.com/noah-isme/callpanel-api/pkg/notify"
	"github.com/noah-isme/callpanel-api/pkg/storage"
	"github.com/noah-isme/callpanel-api/pkg/tts"
)

const (
	invalidateBatch    = 100
	defaultSynthesisTO = 15 * time.Second
)

type audioCacheRepository interface {
	GetByKey(ctx context.Context, cacheKey string) (*models.AudioCacheEntry, error)
	Upsert(ctx context.Context, entry *models.AudioCacheEntry) error
	Promote(ctx context.Context, cacheKey, objectKey string) error
	Touch(ctx context.Context, cacheKey string, at time.Time) error
	ListOlderThan(ctx context.Context, category models.AudioCacheCategory, cutoff time.Time, limit int) ([]models.AudioCacheEntry, error)
	Delete(ctx context.Context, cacheKey string) error
	DeleteByCategory(ctx context.Context, category models.AudioCacheCategory) (int64, error)
}

type announcementAudioRepository interface {
	GetByID(ctx context.Context, id string) (*models.ScheduledAnnouncement, error)
	SetAudio(ctx context.Context, id string, cacheKey, url *string, generatedAt *time.Time) error
	ClearAudioByKey(ctx context.Context, cacheKey string) (int64, error)
	ClearAllAudio(ctx context.Context) (int64, error)
}

type speechSynthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// AudioRequest identifies the audio to resolve.
type AudioRequest struct {
	Text         string
	Voice        string
	SpeakingRate float64
	Category     models.AudioCacheCategory
}

// AudioCacheConfig tunes the cache manager.
type AudioCacheConfig struct {
	DefaultVoice     string
	DefaultRate      float64
	SynthesisTimeout time.Duration
	TemporaryTTLDays int
	SweepInterval    time.Duration
}

// AudioCacheService resolves text to stored audio, synthesizing at most once per key.
type AudioCacheService struct {
	entries       audioCacheRepository
	announcements announcementAudioRepository
	store         storage.ObjectStore
	synth         speechSynthesizer
	memo          *AudioMemo
	metrics       *MetricsService
	alerts        notify.Notifier
	logger        *zap.Logger
	cfg           AudioCacheConfig
	group         singleflight.Group
	batchSize     int
	now           func() time.Time
}

// NewAudioCacheService constructs the cache manager.
func NewAudioCacheService(entries audioCacheRepository, announcements announcementAudioRepository, store storage.ObjectStore, synth speechSynthesizer, memo *AudioMemo, metrics *MetricsService, alerts notify.Notifier, logger *zap.Logger, cfg AudioCacheConfig) *AudioCacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultRate <= 0 {
		cfg.DefaultRate = 1.0
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = defaultSynthesisTO
	}
	if cfg.TemporaryTTLDays <= 0 {
		cfg.TemporaryTTLDays = 7
	}
	return &AudioCacheService{
		entries:       entries,
		announcements: announcements,
		store:         store,
		synth:         synth,
		memo:          memo,
		metrics:       metrics,
		alerts:        alerts,
		logger:        logger,
		cfg:           cfg,
		batchSize:     invalidateBatch,
		now:           time.Now,
	}
}

// CacheKey derives the deterministic key for (text, voice, rate). Whitespace runs in text
// collapse, voice is case-insensitive and rate is compared at two decimals.
func CacheKey(text, voice string, rate float64) string {
	normalized := CacheKeyText(text)
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x1f%s\x1f%.2f", normalized, strings.ToLower(strings.TrimSpace(voice)), rate)))
	return hex.EncodeToString(sum[:])
}

func objectKeyFor(category models.AudioCacheCategory, cacheKey, contentType string) string {
	ext := ".mp3"
	switch contentType {
	case "audio/ogg":
		ext = ".ogg"
	case "audio/wav":
		ext = ".wav"
	}
	return path.Join("tts", string(category), cacheKey+ext)
}

func (s *AudioCacheService) normalize(req AudioRequest) (AudioRequest, error) {
	if strings.TrimSpace(req.Text) == "" {
		return req, appErrors.Clone(appErrors.ErrValidation, "text is required")
	}
	if strings.TrimSpace(req.Voice) == "" {
		req.Voice = s.cfg.DefaultVoice
	}
	if req.SpeakingRate <= 0 {
		req.SpeakingRate = s.cfg.DefaultRate
	}
	req.Category = models.AudioCacheCategory(strings.ToLower(string(req.Category)))
	if req.Category == "" {
		req.Category = models.AudioCacheTemporary
	}
	if !req.Category.Valid() {
		return req, appErrors.Clone(appErrors.ErrValidation, "category must be permanent or temporary")
	}
	return req, nil
}

// Resolve returns a playable handle, synthesizing on a miss. Concurrent misses for the same key
// share one synthesis. A permanent request promotes an existing temporary entry.
func (s *AudioCacheService) Resolve(ctx context.Context, req AudioRequest) (*models.AudioHandle, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}
	key := CacheKey(req.Text, req.Voice, req.SpeakingRate)

	if memo, hit := s.memo.Lookup(ctx, key); hit {
		if memo.Category == models.AudioCachePermanent || req.Category == models.AudioCacheTemporary {
			memo.CacheHit = true
			s.metrics.RecordAudioLookup("memo")
			return memo, nil
		}
	}

	entry, err := s.entries.GetByKey(ctx, key)
	switch {
	case err == nil:
		return s.fromEntry(ctx, entry, req.Category)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrAudioUnavailable.Code, appErrors.ErrAudioUnavailable.Status, "audio cache lookup failed")
	}

	result, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.synthesizeAndStore(ctx, key, req)
	})
	if err != nil {
		return nil, err
	}
	handle := *result.(*models.AudioHandle)
	if req.Category == models.AudioCachePermanent && handle.Category != models.AudioCachePermanent {
		// Joined a temporary synthesis for the same key.
		entry, err := s.entries.GetByKey(ctx, key)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrAudioUnavailable.Code, appErrors.ErrAudioUnavailable.Status, "audio cache lookup failed")
		}
		return s.fromEntry(ctx, entry, req.Category)
	}
	return &handle, nil
}

func (s *AudioCacheService) fromEntry(ctx context.Context, entry *models.AudioCacheEntry, want models.AudioCacheCategory) (*models.AudioHandle, error) {
	if want == models.AudioCachePermanent && entry.Category == models.AudioCacheTemporary {
		if err := s.promote(ctx, entry); err != nil {
			return nil, err
		}
	}
	url, err := s.store.URL(entry.ObjectKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrAudioUnavailable.Code, appErrors.ErrAudioUnavailable.Status, "audio url unavailable")
	}
	if err := s.entries.Touch(ctx, entry.CacheKey, s.now().UTC()); err != nil {
		s.logger.Warn("touch audio entry failed", zap.String("cache_key", entry.CacheKey), zap.Error(err))
	}
	handle := &models.AudioHandle{
		CacheKey:    entry.CacheKey,
		ObjectKey:   entry.ObjectKey,
		URL:         url,
		ContentType: entry.ContentType,
		Category:    entry.Category,
		CacheHit:    true,
	}
	s.memo.Remember(ctx, *handle)
	s.metrics.RecordAudioLookup("store")
	return handle, nil
}

func (s *AudioCacheService) promote(ctx context.Context, entry *models.AudioCacheEntry) error {
	oldKey := entry.ObjectKey
	newKey := objectKeyFor(models.AudioCachePermanent, entry.CacheKey, entry.ContentType)
	data, err := s.store.Get(ctx, oldKey)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrAudioUnavailable.Code, appErrors.ErrAudioUnavailable.Status, "audio object unavailable")
	}
	if err := s.store.Put(ctx, newKey, data, entry.ContentType); err != nil {
		return appErrors.Wrap(err, appErrors.ErrAudioUnavailable.Code, appErrors.ErrAudioUnavailable.Status, "audio storage unavailable")
	}
	if err := s.entries.Promote(ctx, entry.CacheKey, newKey); err != nil {
		return appErrors.Wrap(err, appErrors.ErrAudioUnavailable.Code, appErrors.ErrAudioUnavailable.Status, "audio cache update failed")
	}
	if err := s.store.Delete(ctx, oldKey); err != nil {
		s.logger.Warn("delete promoted temporary object failed", zap.String("object_key", oldKey), zap.Error(err))
	}
	entry.ObjectKey = newKey
	entry.Category = models.AudioCachePermanent
	return nil
}

func (s *AudioCacheService) synthesizeAndStore(ctx context.Context, key string, req AudioRequest) (*models.AudioHandle, error) {
	// The shared call outlives any single waiter.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.SynthesisTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.synth.Synthesize(callCtx, tts.Request{Text: req.Text, Voice: req.Voice, SpeakingRate: req.SpeakingRate})
	s.metrics.ObserveSynthesis(err, time.Since(start))
	if err != nil {
		s.logger.Error("speech synthesis failed", zap.String("cache_key", key), zap.Error(err))
		s.alert(callCtx, fmt.Sprintf("Speech synthesis failed for %q: %v", truncateText(req.Text, 80), err))
		return nil, appErrors.Wrap(err, appErrors.ErrAudioUnavailable.Code, appErrors.ErrAudioUnavailable.Status, "speech synthesis unavailable")
	}

	objectKey := objectKeyFor(req.Category, key, result.ContentType)
	if err := s.store.Put(callCtx, objectKey, result.Audio, result.ContentType); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrAudioUnavailable.Code, appErrors.ErrAudioUnavailable.Status, "audio storage unavailable")
	}
	now := s.now().UTC()
	entry := &models.AudioCacheEntry{
		CacheKey:       key,
		Text:           CacheKeyText(req.Text),
		Voice:          req.Voice,
		SpeakingRate:   req.SpeakingRate,
		Category:       req.Category,
		ObjectKey:      objectKey,
		ContentType:    result.ContentType,
		SizeBytes:      int64(len(result.Audio)),
		LastAccessedAt: &now,
		CreatedAt:      now,
	}
	if err := s.entries.Upsert(callCtx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrAudioUnavailable.Code, appErrors.ErrAudioUnavailable.Status, "audio cache update failed")
	}
	url, err := s.store.URL(entry.ObjectKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrAudioUnavailable.Code, appErrors.ErrAudioUnavailable.Status, "audio url unavailable")
	}
	handle := &models.AudioHandle{
		CacheKey:    key,
		ObjectKey:   entry.ObjectKey,
		URL:         url,
		ContentType: entry.ContentType,
		Category:    entry.Category,
	}
	s.memo.Remember(callCtx, *handle)
	s.metrics.RecordAudioLookup("synthesis")
	return handle, nil
}

func (s *AudioCacheService) alert(ctx context.Context, message string) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Notify(ctx, message); err != nil {
		s.logger.Warn("operator alert failed", zap.Error(err))
	}
}

// Invalidate evicts temporary entries older than olderThanDays and drops announcement references to
// them. Permanent entries are never evicted by age. Entries whose object fails to delete keep their
// metadata so a later pass can retry them; each is counted once per pass.
func (s *AudioCacheService) Invalidate(ctx context.Context, olderThanDays int, category models.AudioCacheCategory) (*models.AudioInvalidateResult, error) {
	if category == "" {
		category = models.AudioCacheTemporary
	}
	if category != models.AudioCacheTemporary {
		return nil, appErrors.Clone(appErrors.ErrValidation, "only temporary entries can be invalidated by age")
	}
	if olderThanDays < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "older_than_days must not be negative")
	}
	cutoff := s.now().UTC().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	result := &models.AudioInvalidateResult{Category: category, Cutoff: cutoff}
	failed := make(map[string]struct{})
	for {
		batch, err := s.entries.ListOlderThan(ctx, category, cutoff, s.batchSize)
		if err != nil {
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list cache entries")
		}
		progressed := 0
		for _, entry := range batch {
			if _, seen := failed[entry.CacheKey]; seen {
				continue
			}
			if err := s.store.Delete(ctx, entry.ObjectKey); err != nil {
				failed[entry.CacheKey] = struct{}{}
				s.logger.Warn("evict audio object failed", zap.String("object_key", entry.ObjectKey), zap.Error(err))
				continue
			}
			if err := s.entries.Delete(ctx, entry.CacheKey); err != nil {
				failed[entry.CacheKey] = struct{}{}
				s.logger.Warn("evict audio entry failed", zap.String("cache_key", entry.CacheKey), zap.Error(err))
				continue
			}
			if _, err := s.announcements.ClearAudioByKey(ctx, entry.CacheKey); err != nil {
				s.logger.Warn("clear evicted announcement audio failed", zap.String("cache_key", entry.CacheKey), zap.Error(err))
			}
			s.memo.Forget(ctx, entry.CacheKey)
			result.Deleted++
			progressed++
		}
		if progressed == 0 || len(batch) < s.batchSize {
			break
		}
	}
	result.Failed = len(failed)
	s.metrics.RecordEvictions(result.Deleted)
	s.logger.Info("audio cache invalidated",
		zap.String("category", string(category)),
		zap.Time("cutoff", cutoff),
		zap.Int("deleted", result.Deleted),
		zap.Int("failed", result.Failed))
	return result, nil
}

// StartRetentionSweep periodically evicts temporary entries past the configured age.
func (s *AudioCacheService) StartRetentionSweep(ctx context.Context) {
	if s.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.SweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Invalidate(ctx, s.cfg.TemporaryTTLDays, models.AudioCacheTemporary); err != nil {
					s.logger.Warn("audio retention sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// Clear removes every object and metadata row of a category. Rows go first so no entry ever points
// at a deleted object; objects left behind by a failed delete are relisted by the next Clear and
// overwritten by the next synthesis of their key. Clearing permanent audio also drops the references
// held by announcements, which regenerate on their next trigger.
func (s *AudioCacheService) Clear(ctx context.Context, category models.AudioCacheCategory) (*models.AudioInvalidateResult, error) {
	if !category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "category must be permanent or temporary")
	}
	result := &models.AudioInvalidateResult{Category: category, Cutoff: s.now().UTC()}
	objects, err := s.store.List(ctx, path.Join("tts", string(category))+"/")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audio objects")
	}
	if _, err := s.entries.DeleteByCategory(ctx, category); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear cache entries")
	}
	s.memo.Forget(ctx, "")
	if category == models.AudioCachePermanent {
		if _, err := s.announcements.ClearAllAudio(ctx); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear announcement audio")
		}
	}
	for _, obj := range objects {
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			result.Failed++
			s.logger.Warn("clear audio object failed", zap.String("object_key", obj.Key), zap.Error(err))
			continue
		}
		result.Deleted++
	}
	return result, nil
}

// Stats summarises stored objects per category.
func (s *AudioCacheService) Stats(ctx context.Context) (*models.AudioCacheStats, error) {
	stats := &models.AudioCacheStats{GeneratedAt: s.now().UTC()}
	for _, category := range []models.AudioCacheCategory{models.AudioCachePermanent, models.AudioCacheTemporary} {
		objects, err := s.store.List(ctx, path.Join("tts", string(category))+"/")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audio objects")
		}
		item := models.AudioCacheCategoryStats{Category: category, Objects: len(objects)}
		for _, obj := range objects {
			item.Bytes += obj.Size
		}
		stats.Categories = append(stats.Categories, item)
	}
	return stats, nil
}

// AudioURL returns a current link for a cached entry. found is false when the entry no longer exists.
func (s *AudioCacheService) AudioURL(ctx context.Context, cacheKey string) (string, bool, error) {
	objectKey := ""
	if handle, hit := s.memo.Lookup(ctx, cacheKey); hit {
		objectKey = handle.ObjectKey
	} else {
		entry, err := s.entries.GetByKey(ctx, cacheKey)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", false, nil
			}
			return "", false, fmt.Errorf("load cache entry %s: %w", cacheKey, err)
		}
		objectKey = entry.ObjectKey
	}
	url, err := s.store.URL(objectKey)
	if err != nil {
		return "", false, fmt.Errorf("sign audio url %s: %w", objectKey, err)
	}
	return url, true, nil
}

// GenerateForAnnouncement ensures the announcement has permanent audio and records the reference.
func (s *AudioCacheService) GenerateForAnnouncement(ctx context.Context, announcementID string) (*models.ScheduledAnnouncement, error) {
	announcement, err := s.announcements.GetByID(ctx, announcementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	handle, err := s.Resolve(ctx, AudioRequest{Text: announcement.Text, Category: models.AudioCachePermanent})
	if err != nil {
		return nil, err
	}
	if announcement.AudioCacheKey != nil && *announcement.AudioCacheKey != handle.CacheKey {
		if err := s.deleteEntry(ctx, *announcement.AudioCacheKey); err != nil {
			s.logger.Warn("delete stale announcement audio failed", zap.String("announcement_id", announcementID), zap.Error(err))
		}
	}
	now := s.now().UTC()
	if err := s.announcements.SetAudio(ctx, announcement.ID, &handle.CacheKey, &handle.URL, &now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record announcement audio")
	}
	announcement.AudioCacheKey = &handle.CacheKey
	announcement.AudioURL = &handle.URL
	announcement.AudioGeneratedAt = &now
	return announcement, nil
}

// DeleteForAnnouncement removes the cached audio of an announcement. A missing announcement or
// entry is not an error.
func (s *AudioCacheService) DeleteForAnnouncement(ctx context.Context, announcementID string) error {
	announcement, err := s.announcements.GetByID(ctx, announcementID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	return s.DeleteAnnouncementAudio(ctx, *announcement)
}

// DeleteAnnouncementAudio removes the audio referenced by an announcement snapshot, so it works
// whether or not the record still exists. Both the recorded key and the key derived from the
// current text are removed.
func (s *AudioCacheService) DeleteAnnouncementAudio(ctx context.Context, announcement models.ScheduledAnnouncement) error {
	keys := []string{CacheKey(announcement.Text, s.cfg.DefaultVoice, s.cfg.DefaultRate)}
	if announcement.AudioCacheKey != nil && *announcement.AudioCacheKey != keys[0] {
		keys = append(keys, *announcement.AudioCacheKey)
	}
	var errs []error
	for _, key := range keys {
		if err := s.deleteEntry(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return appErrors.Wrap(errors.Join(errs...), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement audio")
	}
	return nil
}

func (s *AudioCacheService) deleteEntry(ctx context.Context, cacheKey string) error {
	defer s.memo.Forget(ctx, cacheKey)
	entry, err := s.entries.GetByKey(ctx, cacheKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("load cache entry %s: %w", cacheKey, err)
	}
	if err := s.store.Delete(ctx, entry.ObjectKey); err != nil {
		return fmt.Errorf("delete audio object %s: %w", entry.ObjectKey, err)
	}
	if err := s.entries.Delete(ctx, cacheKey); err != nil {
		return fmt.Errorf("delete cache entry %s: %w", cacheKey, err)
	}
	if _, err := s.announcements.ClearAudioByKey(ctx, cacheKey); err != nil {
		return fmt.Errorf("clear announcement audio %s: %w", cacheKey, err)
	}
	return nil
}

func truncateText(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
