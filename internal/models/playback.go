package models

import "time"

// DueReason names the first scheduling predicate that failed, or DueReasonDue.
type DueReason string

const (
	DueReasonDue             DueReason = "due"
	DueReasonInactive        DueReason = "inactive"
	DueReasonOutsideValidity DueReason = "outside_validity"
	DueReasonWeekday         DueReason = "weekday"
	DueReasonOutsideWindow   DueReason = "outside_window"
	DueReasonInterval        DueReason = "interval"
	DueReasonInvalidSchedule DueReason = "invalid_schedule"
)

// DueCheck is the outcome of evaluating one record at an instant.
type DueCheck struct {
	Due    bool      `json:"due"`
	Reason DueReason `json:"reason"`
}

// DueCandidate exposes what a caller needs to pick among simultaneously due announcements.
type DueCandidate struct {
	AnnouncementID  string     `json:"announcement_id"`
	Title           string     `json:"title"`
	LastPlayedAt    *time.Time `json:"last_played_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	IntervalMinutes int        `json:"interval_minutes"`
}

// TriggerStatus classifies the outcome of a trigger.
type TriggerStatus string

const (
	TriggerPlayed           TriggerStatus = "played"
	TriggerNothingDue       TriggerStatus = "nothing_due"
	TriggerAudioUnavailable TriggerStatus = "audio_unavailable"
)

// TriggerResult reports what a trigger did for a unit.
type TriggerResult struct {
	UnitID       string                 `json:"unit_id"`
	Status       TriggerStatus          `json:"status"`
	Announcement *ScheduledAnnouncement `json:"announcement,omitempty"`
	Audio        *AudioHandle           `json:"audio,omitempty"`
	Candidates   int                    `json:"candidates"`
	Message      string                 `json:"message,omitempty"`
	EvaluatedAt  time.Time              `json:"evaluated_at"`
}

// AnnouncementView decorates an announcement with its CRUD-time warnings.
type AnnouncementView struct {
	ScheduledAnnouncement
	Warnings []string `json:"warnings,omitempty"`
}
