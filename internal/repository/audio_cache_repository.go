package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/callpanel-api/internal/models"
)

const audioCacheColumns = `cache_key, text, voice, speaking_rate, category, object_key, content_type, size_bytes,
hit_count, last_accessed_at, created_at`

// AudioCacheRepository stores metadata for synthesized audio objects.
type AudioCacheRepository struct {
	db *sqlx.DB
}

// NewAudioCacheRepository creates the repository.
func NewAudioCacheRepository(db *sqlx.DB) *AudioCacheRepository {
	return &AudioCacheRepository{db: db}
}

// GetByKey returns the entry for a cache key.
func (r *AudioCacheRepository) GetByKey(ctx context.Context, cacheKey string) (*models.AudioCacheEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM audio_cache_entries WHERE cache_key = $1`, audioCacheColumns)
	var entry models.AudioCacheEntry
	if err := r.db.GetContext(ctx, &entry, query, cacheKey); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Upsert writes the entry. A concurrent writer of the same key wins last; content is identical.
// A permanent row is never downgraded to temporary.
func (r *AudioCacheRepository) Upsert(ctx context.Context, entry *models.AudioCacheEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO audio_cache_entries (cache_key, text, voice, speaking_rate, category, object_key, content_type, size_bytes, hit_count, created_at)
VALUES (:cache_key, :text, :voice, :speaking_rate, :category, :object_key, :content_type, :size_bytes, 0, :created_at)
ON CONFLICT (cache_key) DO UPDATE SET
	object_key = CASE WHEN audio_cache_entries.category = 'permanent' THEN audio_cache_entries.object_key ELSE EXCLUDED.object_key END,
	content_type = EXCLUDED.content_type,
	size_bytes = EXCLUDED.size_bytes,
	category = CASE WHEN audio_cache_entries.category = 'permanent' THEN audio_cache_entries.category ELSE EXCLUDED.category END`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("upsert audio cache entry: %w", err)
	}
	return nil
}

// Promote marks an entry permanent and points it at its relocated object.
func (r *AudioCacheRepository) Promote(ctx context.Context, cacheKey, objectKey string) error {
	const query = `UPDATE audio_cache_entries SET category = 'permanent', object_key = $2 WHERE cache_key = $1`
	if _, err := r.db.ExecContext(ctx, query, cacheKey, objectKey); err != nil {
		return fmt.Errorf("promote audio cache entry: %w", err)
	}
	return nil
}

// Touch bumps usage counters on a hit.
func (r *AudioCacheRepository) Touch(ctx context.Context, cacheKey string, at time.Time) error {
	const query = `UPDATE audio_cache_entries SET hit_count = hit_count + 1, last_accessed_at = $2 WHERE cache_key = $1`
	if _, err := r.db.ExecContext(ctx, query, cacheKey, at.UTC()); err != nil {
		return fmt.Errorf("touch audio cache entry: %w", err)
	}
	return nil
}

// ListOlderThan returns up to limit entries of a category created before cutoff.
func (r *AudioCacheRepository) ListOlderThan(ctx context.Context, category models.AudioCacheCategory, cutoff time.Time, limit int) ([]models.AudioCacheEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`SELECT %s FROM audio_cache_entries WHERE category = $1 AND created_at < $2 ORDER BY created_at ASC LIMIT $3`, audioCacheColumns)
	var rows []models.AudioCacheEntry
	if err := r.db.SelectContext(ctx, &rows, query, string(category), cutoff.UTC(), limit); err != nil {
		return nil, fmt.Errorf("list expired audio cache entries: %w", err)
	}
	return rows, nil
}

// Delete removes the entry for a cache key.
func (r *AudioCacheRepository) Delete(ctx context.Context, cacheKey string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM audio_cache_entries WHERE cache_key = $1", cacheKey); err != nil {
		return fmt.Errorf("delete audio cache entry: %w", err)
	}
	return nil
}

// DeleteByCategory removes every entry of a category.
func (r *AudioCacheRepository) DeleteByCategory(ctx context.Context, category models.AudioCacheCategory) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM audio_cache_entries WHERE category = $1", string(category))
	if err != nil {
		return 0, fmt.Errorf("delete audio cache category: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete audio cache category rows: %w", err)
	}
	return affected, nil
}
