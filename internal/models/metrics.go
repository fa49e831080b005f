package models

import "time"

// SystemMetrics is a lightweight snapshot of process counters.
type SystemMetrics struct {
	RequestsTotal            uint64            `json:"requests_total"`
	AverageRequestDurationMs float64           `json:"average_request_duration_ms"`
	AudioCacheHitRatio       float64           `json:"audio_cache_hit_ratio"`
	AudioCacheHits           uint64            `json:"audio_cache_hits"`
	AudioCacheMisses         uint64            `json:"audio_cache_misses"`
	SynthesisFailures        uint64            `json:"synthesis_failures"`
	Triggers                 map[string]uint64 `json:"triggers"`
	FragmentProbeFailures    uint64            `json:"fragment_probe_failures"`
	Goroutines               int               `json:"goroutines"`
	GeneratedAt              time.Time         `json:"generated_at"`
}
