package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/callpanel-api/internal/models"
	"github.com/noah-isme/callpanel-api/internal/service"
)

type dependencyCheckerMock struct {
	ready models.DependencyReport
}

func (m *dependencyCheckerMock) Ready(context.Context) models.DependencyReport { return m.ready }

func (m *dependencyCheckerMock) Check(context.Context) models.DependencyReport {
	return models.DependencyReport{Healthy: false, Dependencies: []models.DependencyStatus{{Name: "tts", Error: "timeout"}}}
}

func TestMetricsHandlerReady(t *testing.T) {
	h := NewMetricsHandler(service.NewMetricsService(), &dependencyCheckerMock{ready: models.DependencyReport{Healthy: false}})
	c, w := newContext(http.MethodGet, "/ready", "", nil)
	h.Ready(c)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	h = NewMetricsHandler(service.NewMetricsService(), &dependencyCheckerMock{ready: models.DependencyReport{Healthy: true}})
	c, w = newContext(http.MethodGet, "/ready", "", nil)
	h.Ready(c)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsHandlerDependenciesAndSummary(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordTrigger(models.TriggerPlayed)
	h := NewMetricsHandler(metrics, &dependencyCheckerMock{})

	c, w := newContext(http.MethodGet, "/health/dependencies", "", nil)
	h.Dependencies(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"tts"`)

	c, w = newContext(http.MethodGet, "/metrics/summary", "", nil)
	h.Summary(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"played":1`)

	c, w = newContext(http.MethodGet, "/metrics", "", nil)
	h.Prometheus(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "announcement_triggers_total")
}
