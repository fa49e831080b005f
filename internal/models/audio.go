package models

import "time"

// AudioCacheCategory decides whether an entry may be evicted by age.
type AudioCacheCategory string

const (
	AudioCachePermanent AudioCacheCategory = "permanent"
	AudioCacheTemporary AudioCacheCategory = "temporary"
)

// Valid reports whether the category is known.
func (c AudioCacheCategory) Valid() bool {
	return c == AudioCachePermanent || c == AudioCacheTemporary
}

// AudioCacheEntry is the metadata row describing one synthesized object.
type AudioCacheEntry struct {
	CacheKey       string             `db:"cache_key" json:"cache_key"`
	Text           string             `db:"text" json:"text"`
	Voice          string             `db:"voice" json:"voice"`
	SpeakingRate   float64            `db:"speaking_rate" json:"speaking_rate"`
	Category       AudioCacheCategory `db:"category" json:"category"`
	ObjectKey      string             `db:"object_key" json:"object_key"`
	ContentType    string             `db:"content_type" json:"content_type"`
	SizeBytes      int64              `db:"size_bytes" json:"size_bytes"`
	HitCount       int64              `db:"hit_count" json:"hit_count"`
	LastAccessedAt *time.Time         `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
}

// AudioHandle references a playable stored object.
type AudioHandle struct {
	CacheKey    string             `json:"cache_key"`
	ObjectKey   string             `json:"object_key"`
	URL         string             `json:"url"`
	ContentType string             `json:"content_type"`
	Category    AudioCacheCategory `json:"category"`
	CacheHit    bool               `json:"cache_hit"`
}

// AudioCacheCategoryStats aggregates stored objects per category.
type AudioCacheCategoryStats struct {
	Category AudioCacheCategory `json:"category"`
	Objects  int                `json:"objects"`
	Bytes    int64              `json:"bytes"`
}

// AudioCacheStats summarises the cache inventory.
type AudioCacheStats struct {
	Categories  []AudioCacheCategoryStats `json:"categories"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// AudioInvalidateResult reports the outcome of an eviction pass.
type AudioInvalidateResult struct {
	Category AudioCacheCategory `json:"category"`
	Cutoff   time.Time          `json:"cutoff"`
	Deleted  int                `json:"deleted"`
	Failed   int                `json:"failed"`
}
