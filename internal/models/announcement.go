package models

import "time"

// ScheduledAnnouncement is a spoken message replayed inside a time window.
type ScheduledAnnouncement struct {
	ID     string `db:"id" json:"id"`
	UnitID string `db:"unit_id" json:"unit_id"`
	Title  string `db:"title" json:"title"`
	Text   string `db:"text" json:"text"`
	Schedule
	IntervalMinutes  int        `db:"interval_minutes" json:"interval_minutes"`
	RepeatCount      int        `db:"repeat_count" json:"repeat_count"`
	AudioCacheKey    *string    `db:"audio_cache_key" json:"audio_cache_key,omitempty"`
	AudioURL         *string    `db:"audio_url" json:"audio_url,omitempty"`
	AudioGeneratedAt *time.Time `db:"audio_generated_at" json:"audio_generated_at,omitempty"`
	LastPlayedAt     *time.Time `db:"last_played_at" json:"last_played_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// CommercialPhrase is a ticker message shown while due. It is never spoken.
type CommercialPhrase struct {
	ID     string `db:"id" json:"id"`
	UnitID string `db:"unit_id" json:"unit_id"`
	Title  string `db:"title" json:"title"`
	Text   string `db:"text" json:"text"`
	Schedule
	DisplayOrder int       `db:"display_order" json:"display_order"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// AnnouncementFilter narrows announcement listings.
type AnnouncementFilter struct {
	UnitID     string
	ActiveOnly bool
	Page       int
	PageSize   int
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
