package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/callpanel-api/internal/dto"
	"github.com/noah-isme/callpanel-api/internal/models"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
	"github.com/noah-isme/callpanel-api/pkg/realtime"
)

type phraseRepository interface {
	ListByUnit(ctx context.Context, unitID string, activeOnly bool) ([]models.CommercialPhrase, error)
	GetByID(ctx context.Context, id string) (*models.CommercialPhrase, error)
	Create(ctx context.Context, phrase *models.CommercialPhrase) error
	Update(ctx context.Context, phrase *models.CommercialPhrase) error
	Delete(ctx context.Context, id string) error
}

// PhraseService manages commercial ticker phrases.
type PhraseService struct {
	repo      phraseRepository
	publisher realtime.Publisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPhraseService constructs the service.
func NewPhraseService(repo phraseRepository, publisher realtime.Publisher, validate *validator.Validate, logger *zap.Logger) *PhraseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerScheduleValidations(validate)
	return &PhraseService{repo: repo, publisher: publisher, validator: validate, logger: logger}
}

// List returns every phrase of a unit in display order.
func (s *PhraseService) List(ctx context.Context, unitID string) ([]models.CommercialPhrase, error) {
	rows, err := s.repo.ListByUnit(ctx, unitID, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list phrases")
	}
	return rows, nil
}

// Get returns a phrase by id.
func (s *PhraseService) Get(ctx context.Context, id string) (*models.CommercialPhrase, error) {
	phrase, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "phrase not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load phrase")
	}
	return phrase, nil
}

// Create validates and stores a phrase.
func (s *PhraseService) Create(ctx context.Context, unitID string, req dto.UpsertPhraseRequest) (*models.CommercialPhrase, []string, error) {
	if strings.TrimSpace(unitID) == "" {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unit id is required")
	}
	phrase := &models.CommercialPhrase{UnitID: unitID}
	warnings, err := s.apply(phrase, req)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.Create(ctx, phrase); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create phrase")
	}
	s.notifyChanged(ctx, unitID)
	return phrase, warnings, nil
}

// Update replaces the editable fields of a phrase.
func (s *PhraseService) Update(ctx context.Context, id string, req dto.UpsertPhraseRequest) (*models.CommercialPhrase, []string, error) {
	phrase, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	warnings, err := s.apply(phrase, req)
	if err != nil {
		return nil, nil, err
	}
	if err := s.repo.Update(ctx, phrase); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update phrase")
	}
	s.notifyChanged(ctx, phrase.UnitID)
	return phrase, warnings, nil
}

// Delete removes a phrase.
func (s *PhraseService) Delete(ctx context.Context, id string) error {
	phrase, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete phrase")
	}
	s.notifyChanged(ctx, phrase.UnitID)
	return nil
}

func (s *PhraseService) apply(phrase *models.CommercialPhrase, req dto.UpsertPhraseRequest) ([]string, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid phrase payload")
	}
	schedule, warnings, err := buildSchedule(req.ScheduleInput)
	if err != nil {
		return nil, err
	}
	phrase.Title = strings.TrimSpace(req.Title)
	phrase.Text = strings.TrimSpace(req.Text)
	phrase.Schedule = schedule
	phrase.DisplayOrder = req.DisplayOrder
	return warnings, nil
}

func (s *PhraseService) notifyChanged(ctx context.Context, unitID string) {
	if s.publisher == nil {
		return
	}
	topic := realtime.UnitTopic(unitID)
	event := realtime.Event{Type: realtime.EventPhrasesChanged, Topic: topic, OccurredAt: time.Now().UTC()}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("publish phrases changed failed", zap.String("unit_id", unitID), zap.Error(err))
	}
}
