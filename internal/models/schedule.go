package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// TimeOfDay is a wall-clock time with minute resolution, stored as minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	layouts := []string{"15:04", "15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return TimeOfDay(t.Hour()*60 + t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", raw)
}

// TimeOfDayOf truncates t to its wall-clock minute.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

// Valid reports whether the value lies within a single day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t < 24*60
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Value implements driver.Valuer.
func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String() + ":00", nil
}

// Scan implements sql.Scanner.
func (t *TimeOfDay) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*t = TimeOfDayOf(v)
		return nil
	case []byte:
		parsed, err := ParseTimeOfDay(string(v))
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case string:
		parsed, err := ParseTimeOfDay(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	default:
		return fmt.Errorf("unsupported time of day source %T", src)
	}
}

// MarshalJSON renders "HH:MM".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses "HH:MM".
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Weekdays lists active days, 0=Sunday..6=Saturday.
type Weekdays []int

// Contains reports membership of the given weekday.
func (w Weekdays) Contains(day time.Weekday) bool {
	for _, d := range w {
		if d == int(day) {
			return true
		}
	}
	return false
}

// Valid reports whether every entry is a weekday index without duplicates.
func (w Weekdays) Valid() bool {
	seen := make(map[int]struct{}, len(w))
	for _, d := range w {
		if d < 0 || d > 6 {
			return false
		}
		if _, dup := seen[d]; dup {
			return false
		}
		seen[d] = struct{}{}
	}
	return true
}

// Value implements driver.Valuer as a Postgres smallint array.
func (w Weekdays) Value() (driver.Value, error) {
	arr := make(pq.Int64Array, len(w))
	for i, d := range w {
		arr[i] = int64(d)
	}
	return arr.Value()
}

// Scan implements sql.Scanner.
func (w *Weekdays) Scan(src interface{}) error {
	var arr pq.Int64Array
	if err := arr.Scan(src); err != nil {
		return fmt.Errorf("scan weekdays: %w", err)
	}
	days := make(Weekdays, len(arr))
	for i, d := range arr {
		days[i] = int(d)
	}
	*w = days
	return nil
}

const dateLayout = "2006-01-02"

// CalendarDate is a date without time or zone.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseCalendarDate accepts ISO-8601 dates.
func ParseCalendarDate(raw string) (CalendarDate, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return CalendarDate{}, fmt.Errorf("invalid date %q", raw)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t in its own location.
func DateOf(t time.Time) CalendarDate {
	y, m, d := t.Date()
	return CalendarDate{Year: y, Month: m, Day: d}
}

// Before reports whether d is strictly earlier than other.
func (d CalendarDate) Before(other CalendarDate) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// After reports whether d is strictly later than other.
func (d CalendarDate) After(other CalendarDate) bool {
	return other.Before(d)
}

// IsZero reports whether the date was never set.
func (d CalendarDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Value implements driver.Valuer.
func (d CalendarDate) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner.
func (d *CalendarDate) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case []byte:
		parsed, err := ParseCalendarDate(string(v))
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case string:
		parsed, err := ParseCalendarDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	default:
		return fmt.Errorf("unsupported date source %T", src)
	}
}

// MarshalJSON renders "YYYY-MM-DD".
func (d CalendarDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON parses "YYYY-MM-DD".
func (d *CalendarDate) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseCalendarDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Schedule holds the time-window fields shared by announcements and phrases.
type Schedule struct {
	StartTime  TimeOfDay     `db:"start_time" json:"start_time"`
	EndTime    TimeOfDay     `db:"end_time" json:"end_time"`
	Weekdays   Weekdays      `db:"weekdays" json:"weekdays"`
	ValidFrom  *CalendarDate `db:"valid_from" json:"valid_from,omitempty"`
	ValidUntil *CalendarDate `db:"valid_until" json:"valid_until,omitempty"`
	IsActive   bool          `db:"is_active" json:"is_active"`
}

// Problems lists the reasons a stored schedule cannot be evaluated. Empty means well formed.
func (s Schedule) Problems() []string {
	var problems []string
	if !s.StartTime.Valid() || !s.EndTime.Valid() {
		problems = append(problems, "time window out of range")
	} else if s.StartTime > s.EndTime {
		problems = append(problems, "time window crosses midnight")
	}
	if !s.Weekdays.Valid() {
		problems = append(problems, "weekdays must be unique values between 0 and 6")
	}
	if s.ValidFrom != nil && s.ValidUntil != nil && s.ValidUntil.Before(*s.ValidFrom) {
		problems = append(problems, "valid_until precedes valid_from")
	}
	return problems
}
