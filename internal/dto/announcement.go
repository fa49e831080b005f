package dto

// ScheduleInput carries the time-window fields shared by announcements and phrases.
type ScheduleInput struct {
	StartTime  string  `json:"start_time" validate:"required,clock"`
	EndTime    string  `json:"end_time" validate:"required,clock"`
	Weekdays   []int   `json:"weekdays" validate:"omitempty,unique,dive,weekday"`
	ValidFrom  *string `json:"valid_from" validate:"omitempty,isodate"`
	ValidUntil *string `json:"valid_until" validate:"omitempty,isodate"`
	IsActive   *bool   `json:"is_active"`
}

// UpsertAnnouncementRequest is the create and update payload of a scheduled announcement.
type UpsertAnnouncementRequest struct {
	Title           string `json:"title" validate:"required,max=200"`
	Text            string `json:"text" validate:"required,max=5000"`
	IntervalMinutes int    `json:"interval_minutes" validate:"min=0,max=1440"`
	RepeatCount     int    `json:"repeat_count" validate:"omitempty,min=1,max=10"`
	ScheduleInput
}

// UpsertPhraseRequest is the create and update payload of a commercial phrase.
type UpsertPhraseRequest struct {
	Title        string `json:"title" validate:"required,max=200"`
	Text         string `json:"text" validate:"required,max=1000"`
	DisplayOrder int    `json:"display_order" validate:"min=0"`
	ScheduleInput
}

// ResolveAudioRequest asks for a playable handle for text.
type ResolveAudioRequest struct {
	Text         string  `json:"text" validate:"required,max=5000"`
	Voice        string  `json:"voice" validate:"omitempty,max=100"`
	SpeakingRate float64 `json:"speaking_rate" validate:"omitempty,gte=0.25,lte=4"`
	Category     string  `json:"category" validate:"omitempty,cachecategory"`
}

// InvalidateCacheRequest evicts entries older than the given age.
type InvalidateCacheRequest struct {
	OlderThanDays *int   `json:"older_than_days" validate:"omitempty,min=0,max=3650"`
	Category      string `json:"category" validate:"omitempty,cachecategory"`
}
