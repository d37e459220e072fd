// Package analytics records what users search for. Every search produces a
// SearchEvent that is aggregated in process and, when Kafka is enabled,
// published for downstream consumers.
package analytics

import "time"

type EventType string

const (
	EventSearch      EventType = "search"
	EventZeroResult  EventType = "zero_result"
	EventIndexBuilt  EventType = "index_built"
	EventIndexReload EventType = "index_reload"
)

// SearchEvent describes one answered search request.
type SearchEvent struct {
	Type        EventType `json:"type"`
	Query       string    `json:"query"`
	Terms       []string  `json:"terms"`
	TotalHits   int       `json:"total_hits"`
	Returned    int       `json:"returned"`
	LatencyMs   int64     `json:"latency_ms"`
	CacheHit    bool      `json:"cache_hit"`
	Fingerprint string    `json:"fingerprint"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
}

// IndexBuiltEvent announces that a new index build was stored. Search
// services reload when its fingerprint differs from the one they serve.
type IndexBuiltEvent struct {
	Type        EventType `json:"type"`
	Project     string    `json:"project"`
	Fingerprint string    `json:"fingerprint"`
	DocCount    int       `json:"doc_count"`
	TermCount   int       `json:"term_count"`
	Store       string    `json:"store"`
	BuiltAt     time.Time `json:"built_at"`
}
