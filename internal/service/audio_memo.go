package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/callpanel-api/internal/models"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
)

const audioMemoPrefix = "audio:handle:"

// MemoStore abstracts the key/value backend of the memo, normally redis.
type MemoStore interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AudioMemo keeps recently resolved handles in front of the metadata table. A nil or disabled
// memo misses every lookup and ignores writes.
type AudioMemo struct {
	store   MemoStore
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewAudioMemo constructs the memo.
func NewAudioMemo(store MemoStore, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *AudioMemo {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AudioMemo{store: store, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether the memo is active.
func (m *AudioMemo) Enabled() bool {
	return m != nil && m.enabled && m.store != nil
}

// Lookup returns the memoized handle for cacheKey. Backend errors count as misses.
func (m *AudioMemo) Lookup(ctx context.Context, cacheKey string) (*models.AudioHandle, bool) {
	if !m.Enabled() {
		return nil, false
	}
	start := time.Now()
	var handle models.AudioHandle
	err := m.store.Get(ctx, audioMemoPrefix+cacheKey, &handle)
	m.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil {
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			m.logger.Warn("audio memo lookup failed", zap.String("cache_key", cacheKey), zap.Error(err))
		}
		return nil, false
	}
	return &handle, true
}

// Remember stores handle under its cache key.
func (m *AudioMemo) Remember(ctx context.Context, handle models.AudioHandle) {
	if !m.Enabled() {
		return
	}
	handle.CacheHit = false
	start := time.Now()
	err := m.store.Set(ctx, audioMemoPrefix+handle.CacheKey, handle, m.ttl)
	m.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		m.logger.Warn("audio memo write failed", zap.String("cache_key", handle.CacheKey), zap.Error(err))
	}
}

// Forget drops one key, or every key when cacheKey is empty.
func (m *AudioMemo) Forget(ctx context.Context, cacheKey string) {
	if !m.Enabled() {
		return
	}
	pattern := audioMemoPrefix + cacheKey
	if cacheKey == "" {
		pattern = audioMemoPrefix + "*"
	}
	if err := m.store.DeleteByPattern(ctx, pattern); err != nil {
		m.logger.Warn("audio memo invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}
