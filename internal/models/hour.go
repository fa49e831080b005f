package models

import "time"

// FragmentVariant distinguishes the pre-rendered hour readings.
type FragmentVariant string

const (
	FragmentOnTheDot    FragmentVariant = "on_the_dot"
	FragmentWithMinutes FragmentVariant = "with_minutes"
	FragmentMinute      FragmentVariant = "minute"
)

// Fragment is one pre-rendered hour or minute audio file.
type Fragment struct {
	Name    string          `json:"name"`
	Variant FragmentVariant `json:"variant"`
	Value   int             `json:"value"`
	URL     string          `json:"url"`
}

// FragmentProbe is the outcome of checking one fragment for existence.
type FragmentProbe struct {
	Fragment   Fragment      `json:"fragment"`
	Available  bool          `json:"available"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// FragmentReport summarises a library-wide existence check.
type FragmentReport struct {
	Total     int             `json:"total"`
	Available int             `json:"available"`
	Missing   []FragmentProbe `json:"missing"`
	Complete  bool            `json:"complete"`
	CheckedAt time.Time       `json:"checked_at"`
}

// PlaybackState is a step of one hour-announcement playback.
type PlaybackState string

const (
	PlaybackIdle          PlaybackState = "idle"
	PlaybackLoadingHour   PlaybackState = "loading_hour"
	PlaybackPlayingHour   PlaybackState = "playing_hour"
	PlaybackLoadingMinute PlaybackState = "loading_minute"
	PlaybackPlayingMinute PlaybackState = "playing_minute"
	PlaybackDone          PlaybackState = "done"
	PlaybackFailed        PlaybackState = "failed"
)

// PlaybackReport records how one hour announcement progressed.
type PlaybackReport struct {
	Hour           int             `json:"hour"`
	Minute         int             `json:"minute"`
	Sequence       []Fragment      `json:"sequence"`
	State          PlaybackState   `json:"state"`
	Transitions    []PlaybackState `json:"transitions"`
	FailedFragment string          `json:"failed_fragment,omitempty"`
	Error          string          `json:"error,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}
