package service

import (
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/callpanel-api/internal/dto"
	"github.com/noah-isme/callpanel-api/internal/models"
	appErrors "github.com/noah-isme/callpanel-api/pkg/errors"
)

const warningNoWeekdays = "no weekdays selected; this entry will never be due"

// NewValidator returns a validator that understands the clock, weekday, isodate and cachecategory tags.
func NewValidator() *validator.Validate {
	v := validator.New()
	registerScheduleValidations(v)
	return v
}

func registerScheduleValidations(v *validator.Validate) {
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := models.ParseTimeOfDay(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
		day := fl.Field().Int()
		return day >= 0 && day <= 6
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := models.ParseCalendarDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("cachecategory", func(fl validator.FieldLevel) bool {
		return models.AudioCacheCategory(strings.ToLower(fl.Field().String())).Valid()
	})
}

// buildSchedule converts validated input into a Schedule and reports non-fatal warnings.
func buildSchedule(in dto.ScheduleInput) (models.Schedule, []string, error) {
	var schedule models.Schedule
	start, err := models.ParseTimeOfDay(in.StartTime)
	if err != nil {
		return schedule, nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be HH:MM")
	}
	end, err := models.ParseTimeOfDay(in.EndTime)
	if err != nil {
		return schedule, nil, appErrors.Clone(appErrors.ErrValidation, "end_time must be HH:MM")
	}
	if start > end {
		return schedule, nil, appErrors.Clone(appErrors.ErrValidation, "start_time must not be after end_time")
	}
	schedule.StartTime = start
	schedule.EndTime = end

	days := make(models.Weekdays, 0, len(in.Weekdays))
	days = append(days, in.Weekdays...)
	sort.Ints(days)
	if !days.Valid() {
		return schedule, nil, appErrors.Clone(appErrors.ErrValidation, "weekdays must be unique values between 0 and 6")
	}
	schedule.Weekdays = days

	if in.ValidFrom != nil && strings.TrimSpace(*in.ValidFrom) != "" {
		from, err := models.ParseCalendarDate(*in.ValidFrom)
		if err != nil {
			return schedule, nil, appErrors.Clone(appErrors.ErrValidation, "valid_from must be YYYY-MM-DD")
		}
		schedule.ValidFrom = &from
	}
	if in.ValidUntil != nil && strings.TrimSpace(*in.ValidUntil) != "" {
		until, err := models.ParseCalendarDate(*in.ValidUntil)
		if err != nil {
			return schedule, nil, appErrors.Clone(appErrors.ErrValidation, "valid_until must be YYYY-MM-DD")
		}
		schedule.ValidUntil = &until
	}
	if schedule.ValidFrom != nil && schedule.ValidUntil != nil && schedule.ValidUntil.Before(*schedule.ValidFrom) {
		return schedule, nil, appErrors.Clone(appErrors.ErrValidation, "valid_until must not precede valid_from")
	}

	schedule.IsActive = true
	if in.IsActive != nil {
		schedule.IsActive = *in.IsActive
	}

	var warnings []string
	if len(days) == 0 {
		warnings = append(warnings, warningNoWeekdays)
	}
	return schedule, warnings, nil
}

func scheduleWarnings(s models.Schedule) []string {
	if len(s.Weekdays) == 0 {
		return []string{warningNoWeekdays}
	}
	return nil
}

// evaluateSchedule applies the window predicates in order and returns the first that fails.
// now must already be expressed in the scheduling location.
func evaluateSchedule(s models.Schedule, now time.Time) models.DueCheck {
	if len(s.Problems()) > 0 {
		return models.DueCheck{Reason: models.DueReasonInvalidSchedule}
	}
	if !s.IsActive {
		return models.DueCheck{Reason: models.DueReasonInactive}
	}
	today := models.DateOf(now)
	if s.ValidFrom != nil && today.Before(*s.ValidFrom) {
		return models.DueCheck{Reason: models.DueReasonOutsideValidity}
	}
	if s.ValidUntil != nil && today.After(*s.ValidUntil) {
		return models.DueCheck{Reason: models.DueReasonOutsideValidity}
	}
	if !s.Weekdays.Contains(now.Weekday()) {
		return models.DueCheck{Reason: models.DueReasonWeekday}
	}
	tod := models.TimeOfDayOf(now)
	if tod < s.StartTime || tod > s.EndTime {
		return models.DueCheck{Reason: models.DueReasonOutsideWindow}
	}
	return models.DueCheck{Due: true, Reason: models.DueReasonDue}
}

// EvaluateAnnouncement reports whether the announcement should play at now.
func EvaluateAnnouncement(a models.ScheduledAnnouncement, now time.Time) models.DueCheck {
	if strings.TrimSpace(a.Text) == "" || a.IntervalMinutes < 0 {
		return models.DueCheck{Reason: models.DueReasonInvalidSchedule}
	}
	check := evaluateSchedule(a.Schedule, now)
	if !check.Due {
		return check
	}
	if a.LastPlayedAt != nil {
		interval := time.Duration(a.IntervalMinutes) * time.Minute
		if now.Sub(*a.LastPlayedAt) < interval {
			return models.DueCheck{Reason: models.DueReasonInterval}
		}
	}
	return check
}

// IsDue is the boolean form of EvaluateAnnouncement.
func IsDue(a models.ScheduledAnnouncement, now time.Time) bool {
	return EvaluateAnnouncement(a, now).Due
}

// EvaluatePhrase applies the window predicates to a phrase. Phrases have no interval gate.
func EvaluatePhrase(p models.CommercialPhrase, now time.Time) models.DueCheck {
	if strings.TrimSpace(p.Text) == "" {
		return models.DueCheck{Reason: models.DueReasonInvalidSchedule}
	}
	return evaluateSchedule(p.Schedule, now)
}

// IsPhraseDue is the boolean form of EvaluatePhrase.
func IsPhraseDue(p models.CommercialPhrase, now time.Time) bool {
	return EvaluatePhrase(p, now).Due
}

// sortDue orders due announcements so the one waiting longest plays first:
// never played, then least recently played, then oldest, then by id.
func sortDue(list []models.ScheduledAnnouncement) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch {
		case a.LastPlayedAt == nil && b.LastPlayedAt != nil:
			return true
		case a.LastPlayedAt != nil && b.LastPlayedAt == nil:
			return false
		case a.LastPlayedAt != nil && b.LastPlayedAt != nil && !a.LastPlayedAt.Equal(*b.LastPlayedAt):
			return a.LastPlayedAt.Before(*b.LastPlayedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
