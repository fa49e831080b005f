package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/callpanel-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	audioLookups    *prometheus.CounterVec
	audioHitRatio   prometheus.Gauge
	synthesis       *prometheus.CounterVec
	synthDuration   prometheus.Observer
	triggers        *prometheus.CounterVec
	fragmentProbes  *prometheus.CounterVec
	evictions       prometheus.Counter

	audioHitCount        uint64
	audioMissCount       uint64
	synthFailureCount    uint64
	probeFailureCount    uint64
	requestCount         uint64
	requestDurationTotal uint64

	triggerMu     sync.Mutex
	triggerCounts map[string]uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for redis memo lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for redis memo writes",
		Buckets: prometheus.DefBuckets,
	})

	audioLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audio_cache_lookups_total",
		Help: "Audio resolutions by the layer that answered them",
	}, []string{"source"})

	audioHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "audio_cache_hit_ratio",
		Help: "Ratio of audio resolutions served without synthesis",
	})

	synthesis := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_synthesis_total",
		Help: "Speech synthesis calls by outcome",
	}, []string{"result"})

	synthDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_synthesis_duration_seconds",
		Help:    "Duration of speech synthesis calls",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	})

	triggers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "announcement_triggers_total",
		Help: "Announcement triggers by outcome",
	}, []string{"status"})

	fragmentProbes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hour_fragment_probes_total",
		Help: "Hour fragment availability probes by outcome",
	}, []string{"result"})

	evictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "audio_cache_evictions_total",
		Help: "Temporary audio entries removed by retention",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, audioLookups, audioHitRatio,
		synthesis, synthDuration, triggers, fragmentProbes, evictions, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		audioLookups:    audioLookups,
		audioHitRatio:   audioHitRatio,
		synthesis:       synthesis,
		synthDuration:   synthDuration,
		triggers:        triggers,
		fragmentProbes:  fragmentProbes,
		evictions:       evictions,
		triggerCounts:   map[string]uint64{},
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records the latency of a redis memo lookup.
func (m *MetricsService) RecordCacheOperation(_ bool, duration time.Duration) {
	if m == nil || m.cacheLatency == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordAudioLookup counts an audio resolution served by source ("memo", "store" or "synthesis").
func (m *MetricsService) RecordAudioLookup(source string) {
	if m == nil {
		return
	}
	m.audioLookups.WithLabelValues(source).Inc()
	if source == "synthesis" {
		atomic.AddUint64(&m.audioMissCount, 1)
	} else {
		atomic.AddUint64(&m.audioHitCount, 1)
	}
	hits := atomic.LoadUint64(&m.audioHitCount)
	misses := atomic.LoadUint64(&m.audioMissCount)
	if total := hits + misses; total > 0 {
		m.audioHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveSynthesis records one provider call.
func (m *MetricsService) ObserveSynthesis(err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.synthDuration.Observe(duration.Seconds())
	if err != nil {
		m.synthesis.WithLabelValues("failure").Inc()
		atomic.AddUint64(&m.synthFailureCount, 1)
		return
	}
	m.synthesis.WithLabelValues("success").Inc()
}

// RecordTrigger counts a trigger outcome.
func (m *MetricsService) RecordTrigger(status models.TriggerStatus) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(string(status)).Inc()
	m.triggerMu.Lock()
	m.triggerCounts[string(status)]++
	m.triggerMu.Unlock()
}

// RecordFragmentProbe counts a fragment availability probe.
func (m *MetricsService) RecordFragmentProbe(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.fragmentProbes.WithLabelValues("available").Inc()
		return
	}
	m.fragmentProbes.WithLabelValues("missing").Inc()
	atomic.AddUint64(&m.probeFailureCount, 1)
}

// RecordEvictions adds n evicted cache entries.
func (m *MetricsService) RecordEvictions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.Add(float64(n))
}

// Snapshot returns aggregated metrics for the JSON metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.audioHitCount)
	misses := atomic.LoadUint64(&m.audioMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var ratio float64
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	m.triggerMu.Lock()
	triggers := make(map[string]uint64, len(m.triggerCounts))
	for k, v := range m.triggerCounts {
		triggers[k] = v
	}
	m.triggerMu.Unlock()

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		AudioCacheHitRatio:       ratio,
		AudioCacheHits:           hits,
		AudioCacheMisses:         misses,
		SynthesisFailures:        atomic.LoadUint64(&m.synthFailureCount),
		Triggers:                 triggers,
		FragmentProbeFailures:    atomic.LoadUint64(&m.probeFailureCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
