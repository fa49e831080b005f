package models

import "time"

// DependencyStatus describes the outcome of checking one upstream.
type DependencyStatus struct {
	Name       string        `json:"name"`
	Reachable  bool          `json:"reachable"`
	Required   bool          `json:"required"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration"`
	ObservedAt time.Time     `json:"observed_at"`
	Error      string        `json:"error,omitempty"`
}

// DependencyReport aggregates every dependency check.
type DependencyReport struct {
	Healthy      bool               `json:"healthy"`
	Dependencies []DependencyStatus `json:"dependencies"`
}
