package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/callpanel-api/internal/models"
)

const announcementColumns = `id, unit_id, title, text, start_time, end_time, weekdays, valid_from, valid_until, is_active,
interval_minutes, repeat_count, audio_cache_key, audio_url, audio_generated_at, last_played_at, created_at, updated_at`

// AnnouncementRepository provides persistence for scheduled announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository creates the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// List returns announcements of a unit ordered by title.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.ScheduledAnnouncement, int, error) {
	where := []string{"unit_id = $1"}
	args := []interface{}{filter.UnitID}
	if filter.ActiveOnly {
		where = append(where, "is_active = TRUE")
	}
	whereClause := strings.Join(where, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM scheduled_announcements WHERE %s ORDER BY title ASC, id ASC LIMIT %d OFFSET %d`,
		announcementColumns, whereClause, size, offset)
	var rows []models.ScheduledAnnouncement
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}
	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM scheduled_announcements WHERE %s", whereClause)
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}
	return rows, total, nil
}

// ListActiveByUnit returns every active announcement of the unit.
func (r *AnnouncementRepository) ListActiveByUnit(ctx context.Context, unitID string) ([]models.ScheduledAnnouncement, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_announcements WHERE unit_id = $1 AND is_active = TRUE`, announcementColumns)
	var rows []models.ScheduledAnnouncement
	if err := r.db.SelectContext(ctx, &rows, query, unitID); err != nil {
		return nil, fmt.Errorf("list active announcements: %w", err)
	}
	return rows, nil
}

// ListActiveUnits returns units that own at least one active announcement.
func (r *AnnouncementRepository) ListActiveUnits(ctx context.Context) ([]string, error) {
	var units []string
	if err := r.db.SelectContext(ctx, &units, `SELECT DISTINCT unit_id FROM scheduled_announcements WHERE is_active = TRUE ORDER BY unit_id`); err != nil {
		return nil, fmt.Errorf("list active units: %w", err)
	}
	return units, nil
}

// GetByID returns an announcement by identifier.
func (r *AnnouncementRepository) GetByID(ctx context.Context, id string) (*models.ScheduledAnnouncement, error) {
	query := fmt.Sprintf(`SELECT %s FROM scheduled_announcements WHERE id = $1`, announcementColumns)
	var announcement models.ScheduledAnnouncement
	if err := r.db.GetContext(ctx, &announcement, query, id); err != nil {
		return nil, err
	}
	return &announcement, nil
}

// Create inserts a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.ScheduledAnnouncement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if announcement.CreatedAt.IsZero() {
		announcement.CreatedAt = now
	}
	announcement.UpdatedAt = now
	query := `INSERT INTO scheduled_announcements (id, unit_id, title, text, start_time, end_time, weekdays, valid_from, valid_until, is_active,
interval_minutes, repeat_count, created_at, updated_at)
VALUES (:id, :unit_id, :title, :text, :start_time, :end_time, :weekdays, :valid_from, :valid_until, :is_active,
:interval_minutes, :repeat_count, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update modifies the editable fields. Playback and audio columns are left untouched.
func (r *AnnouncementRepository) Update(ctx context.Context, announcement *models.ScheduledAnnouncement) error {
	announcement.UpdatedAt = time.Now().UTC()
	query := `UPDATE scheduled_announcements SET title = :title, text = :text, start_time = :start_time, end_time = :end_time,
weekdays = :weekdays, valid_from = :valid_from, valid_until = :valid_until, is_active = :is_active,
interval_minutes = :interval_minutes, repeat_count = :repeat_count, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, announcement); err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	return nil
}

// Delete removes an announcement.
func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM scheduled_announcements WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	return nil
}

// MarkPlayed sets last_played_at only if it still equals expected, so concurrent
// triggers observing the same state cannot both claim the announcement.
func (r *AnnouncementRepository) MarkPlayed(ctx context.Context, id string, expected *time.Time, playedAt time.Time) (bool, error) {
	const query = `UPDATE scheduled_announcements SET last_played_at = $3
WHERE id = $1 AND last_played_at IS NOT DISTINCT FROM $2`
	var prev interface{}
	if expected != nil {
		prev = expected.UTC()
	}
	res, err := r.db.ExecContext(ctx, query, id, prev, playedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("mark announcement played: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark announcement played rows: %w", err)
	}
	return affected == 1, nil
}

// ReleasePlayed undoes a MarkPlayed claim: last_played_at goes back to previous only while it still
// holds the claimed instant.
func (r *AnnouncementRepository) ReleasePlayed(ctx context.Context, id string, claimed time.Time, previous *time.Time) (bool, error) {
	const query = `UPDATE scheduled_announcements SET last_played_at = $3
WHERE id = $1 AND last_played_at = $2`
	var prev interface{}
	if previous != nil {
		prev = previous.UTC()
	}
	res, err := r.db.ExecContext(ctx, query, id, claimed.UTC(), prev)
	if err != nil {
		return false, fmt.Errorf("release announcement claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release announcement claim rows: %w", err)
	}
	return affected == 1, nil
}

// ResetLastPlayed clears the interval gate.
func (r *AnnouncementRepository) ResetLastPlayed(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE scheduled_announcements SET last_played_at = NULL WHERE id = $1", id)
	if err != nil {
		return false, fmt.Errorf("reset announcement playback: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset announcement playback rows: %w", err)
	}
	return affected == 1, nil
}

// SetAudio records the cached audio reference. Nil values clear it.
func (r *AnnouncementRepository) SetAudio(ctx context.Context, id string, cacheKey, url *string, generatedAt *time.Time) error {
	const query = `UPDATE scheduled_announcements SET audio_cache_key = $2, audio_url = $3, audio_generated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, cacheKey, url, generatedAt); err != nil {
		return fmt.Errorf("set announcement audio: %w", err)
	}
	return nil
}

// ClearAudioByKey drops the audio reference of every announcement pointing at cacheKey.
func (r *AnnouncementRepository) ClearAudioByKey(ctx context.Context, cacheKey string) (int64, error) {
	const query = `UPDATE scheduled_announcements SET audio_cache_key = NULL, audio_url = NULL, audio_generated_at = NULL
WHERE audio_cache_key = $1`
	res, err := r.db.ExecContext(ctx, query, cacheKey)
	if err != nil {
		return 0, fmt.Errorf("clear announcement audio: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear announcement audio rows: %w", err)
	}
	return affected, nil
}

// ClearAllAudio drops every audio reference.
func (r *AnnouncementRepository) ClearAllAudio(ctx context.Context) (int64, error) {
	const query = `UPDATE scheduled_announcements SET audio_cache_key = NULL, audio_url = NULL, audio_generated_at = NULL
WHERE audio_cache_key IS NOT NULL`
	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("clear all announcement audio: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear all announcement audio rows: %w", err)
	}
	return affected, nil
}
