// Package telemetry collects local query metrics for diagnostics:
// strategy distribution, latency histograms, and a bounded recent-
// query ring. Nothing leaves the process.
package telemetry

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is one histogram bucket boundary.
type LatencyBucket string

const (
	BucketUnder10ms  LatencyBucket = "<10ms"
	BucketUnder50ms  LatencyBucket = "<50ms"
	BucketUnder100ms LatencyBucket = "<100ms"
	BucketUnder500ms LatencyBucket = "<500ms"
	BucketSlow       LatencyBucket = ">=500ms"
)

// LatencyToBucket maps a duration onto its bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketUnder10ms
	case ms < 50:
		return BucketUnder50ms
	case ms < 100:
		return BucketUnder100ms
	case ms < 500:
		return BucketUnder500ms
	default:
		return BucketSlow
	}
}

// QueryRecord is one observed query.
type QueryRecord struct {
	Strategy    string
	Duration    time.Duration
	ResultCount int
	At          time.Time
}

// recentQueries bounds the in-memory query ring.
const recentQueries = 256

// QueryMetrics aggregates query observations. Safe for concurrent use.
type QueryMetrics struct {
	mu         sync.Mutex
	byStrategy map[string]int
	byBucket   map[LatencyBucket]int
	total      int
	zeroResult int
	recent     *lru.Cache[int, QueryRecord]
	nextID     int
}

// NewQueryMetrics returns an empty collector.
func NewQueryMetrics() *QueryMetrics {
	cache, _ := lru.New[int, QueryRecord](recentQueries)
	return &QueryMetrics{
		byStrategy: make(map[string]int),
		byBucket:   make(map[LatencyBucket]int),
		recent:     cache,
	}
}

// Record adds one observation.
func (m *QueryMetrics) Record(rec QueryRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total++
	m.byStrategy[rec.Strategy]++
	m.byBucket[LatencyToBucket(rec.Duration)]++
	if rec.ResultCount == 0 {
		m.zeroResult++
	}
	m.recent.Add(m.nextID, rec)
	m.nextID++
}

// Snapshot is a point-in-time aggregate view.
type Snapshot struct {
	Total       int
	ZeroResult  int
	ByStrategy  map[string]int
	ByBucket    map[LatencyBucket]int
}

// Snapshot returns a copy of the aggregates.
func (m *QueryMetrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Total:      m.total,
		ZeroResult: m.zeroResult,
		ByStrategy: make(map[string]int, len(m.byStrategy)),
		ByBucket:   make(map[LatencyBucket]int, len(m.byBucket)),
	}
	for k, v := range m.byStrategy {
		s.ByStrategy[k] = v
	}
	for k, v := range m.byBucket {
		s.ByBucket[k] = v
	}
	return s
}

// Recent returns up to n recent query records, oldest first.
func (m *QueryMetrics) Recent(n int) []QueryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := m.recent.Keys()
	if n > 0 && len(keys) > n {
		keys = keys[len(keys)-n:]
	}
	out := make([]QueryRecord, 0, len(keys))
	for _, k := range keys {
		if rec, ok := m.recent.Peek(k); ok {
			out = append(out, rec)
		}
	}
	return out
}
