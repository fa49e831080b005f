package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/callpanel-api/internal/models"
)

const phraseColumns = `id, unit_id, title, text, start_time, end_time, weekdays, valid_from, valid_until, is_active,
display_order, created_at, updated_at`

// PhraseRepository persists commercial ticker phrases.
type PhraseRepository struct {
	db *sqlx.DB
}

// NewPhraseRepository creates the repository.
func NewPhraseRepository(db *sqlx.DB) *PhraseRepository {
	return &PhraseRepository{db: db}
}

// ListByUnit returns phrases of a unit in display order.
func (r *PhraseRepository) ListByUnit(ctx context.Context, unitID string, activeOnly bool) ([]models.CommercialPhrase, error) {
	query := fmt.Sprintf(`SELECT %s FROM commercial_phrases WHERE unit_id = $1`, phraseColumns)
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY display_order ASC, id ASC"
	var rows []models.CommercialPhrase
	if err := r.db.SelectContext(ctx, &rows, query, unitID); err != nil {
		return nil, fmt.Errorf("list phrases: %w", err)
	}
	return rows, nil
}

// GetByID returns a phrase by identifier.
func (r *PhraseRepository) GetByID(ctx context.Context, id string) (*models.CommercialPhrase, error) {
	query := fmt.Sprintf(`SELECT %s FROM commercial_phrases WHERE id = $1`, phraseColumns)
	var phrase models.CommercialPhrase
	if err := r.db.GetContext(ctx, &phrase, query, id); err != nil {
		return nil, err
	}
	return &phrase, nil
}

// Create inserts a new phrase.
func (r *PhraseRepository) Create(ctx context.Context, phrase *models.CommercialPhrase) error {
	if phrase.ID == "" {
		phrase.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if phrase.CreatedAt.IsZero() {
		phrase.CreatedAt = now
	}
	phrase.UpdatedAt = now
	query := `INSERT INTO commercial_phrases (id, unit_id, title, text, start_time, end_time, weekdays, valid_from, valid_until, is_active,
display_order, created_at, updated_at)
VALUES (:id, :unit_id, :title, :text, :start_time, :end_time, :weekdays, :valid_from, :valid_until, :is_active,
:display_order, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, phrase); err != nil {
		return fmt.Errorf("create phrase: %w", err)
	}
	return nil
}

// Update modifies an existing phrase.
func (r *PhraseRepository) Update(ctx context.Context, phrase *models.CommercialPhrase) error {
	phrase.UpdatedAt = time.Now().UTC()
	query := `UPDATE commercial_phrases SET title = :title, text = :text, start_time = :start_time, end_time = :end_time,
weekdays = :weekdays, valid_from = :valid_from, valid_until = :valid_until, is_active = :is_active,
display_order = :display_order, updated_at = :updated_at
WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, phrase); err != nil {
		return fmt.Errorf("update phrase: %w", err)
	}
	return nil
}

// Delete removes a phrase.
func (r *PhraseRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM commercial_phrases WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete phrase: %w", err)
	}
	return nil
}
