package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/noah-isme/callpanel-api/internal/models"
)

// Pinger is satisfied by database handles and cache clients.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// PingContext implements Pinger.
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// HTTPDependency is probed with a GET; any status below 500 counts as reachable.
type HTTPDependency struct {
	Name     string
	URL      string
	Required bool
}

// PingDependency is probed through a Pinger.
type PingDependency struct {
	Name     string
	Pinger   Pinger
	Required bool
}

// HealthService checks the upstreams the API depends on.
type HealthService struct {
	client  *http.Client
	timeout time.Duration
	metrics *MetricsService
	http    []HTTPDependency
	pings   []PingDependency
}

// NewHealthService constructs the checker.
func NewHealthService(client *http.Client, timeout time.Duration, metrics *MetricsService) *HealthService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HealthService{client: client, timeout: timeout, metrics: metrics}
}

// AddHTTP registers an HTTP upstream.
func (s *HealthService) AddHTTP(dep HTTPDependency) {
	s.http = append(s.http, dep)
}

// AddPing registers a pingable upstream.
func (s *HealthService) AddPing(dep PingDependency) {
	if dep.Pinger != nil {
		s.pings = append(s.pings, dep)
	}
}

// Ready reports whether every required dependency answers.
func (s *HealthService) Ready(ctx context.Context) models.DependencyReport {
	return s.check(ctx, true)
}

// Check probes every registered dependency concurrently.
func (s *HealthService) Check(ctx context.Context) models.DependencyReport {
	return s.check(ctx, false)
}

func (s *HealthService) check(ctx context.Context, requiredOnly bool) models.DependencyReport {
	results := make([]models.DependencyStatus, len(s.pings)+len(s.http))
	var wg sync.WaitGroup
	idx := 0
	for _, dep := range s.pings {
		if requiredOnly && !dep.Required {
			continue
		}
		wg.Add(1)
		go func(i int, dep PingDependency) {
			defer wg.Done()
			results[i] = s.ping(ctx, dep)
		}(idx, dep)
		idx++
	}
	for _, dep := range s.http {
		if requiredOnly && !dep.Required {
			continue
		}
		wg.Add(1)
		go func(i int, dep HTTPDependency) {
			defer wg.Done()
			results[i] = s.get(ctx, dep)
		}(idx, dep)
		idx++
	}
	wg.Wait()
	results = results[:idx]

	report := models.DependencyReport{Healthy: true, Dependencies: results}
	for _, r := range results {
		if r.Required && !r.Reachable {
			report.Healthy = false
		}
	}
	return report
}

func (s *HealthService) ping(ctx context.Context, dep PingDependency) models.DependencyStatus {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result := models.DependencyStatus{Name: dep.Name, Required: dep.Required, ObservedAt: time.Now().UTC()}
	start := time.Now()
	err := dep.Pinger.PingContext(ctx)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Reachable = true
	return result
}

func (s *HealthService) get(ctx context.Context, dep HTTPDependency) models.DependencyStatus {
	result := models.DependencyStatus{Name: dep.Name, Required: dep.Required, ObservedAt: time.Now().UTC()}
	if dep.URL == "" {
		result.Error = errors.New("health URL not configured").Error()
		return result
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dep.URL, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	result.Duration = time.Since(start)

	statusCode := http.StatusServiceUnavailable
	if err != nil {
		result.Error = err.Error()
	} else {
		defer resp.Body.Close() //nolint:errcheck
		statusCode = resp.StatusCode
		result.StatusCode = resp.StatusCode
		if resp.StatusCode >= http.StatusInternalServerError {
			result.Error = fmt.Sprintf("received status %d", resp.StatusCode)
		}
		result.Reachable = resp.StatusCode < http.StatusInternalServerError
	}

	s.metrics.ObserveHTTPRequest(http.MethodGet, fmt.Sprintf("dependency_%s", dep.Name), statusCode, result.Duration)
	return result
}
