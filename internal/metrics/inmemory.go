package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	EventsTracked        map[string]uint64 // keyed "type/status"
	Aggregations         map[string]uint64 // keyed by view
	AggregationFailures  map[string]uint64 // keyed by view
	SummaryCacheHits     uint64
	SummaryCacheMisses   uint64
	StreamPublished      map[string]uint64 // keyed by status
	StreamProcessed      map[string]uint64 // keyed by status
	StreamBatches        uint64
	StreamQueueDepth     int64
	TrackDurationCount   uint64
	TrackDurationTotalNs int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu                  sync.Mutex
	eventsTracked       map[string]uint64
	aggregations        map[string]uint64
	aggregationFailures map[string]uint64
	streamPublished     map[string]uint64
	streamProcessed     map[string]uint64

	summaryCacheHits     uint64
	summaryCacheMisses   uint64
	streamBatches        uint64
	streamQueueDepth     int64
	trackDurationCount   uint64
	trackDurationTotalNs int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		eventsTracked:       make(map[string]uint64),
		aggregations:        make(map[string]uint64),
		aggregationFailures: make(map[string]uint64),
		streamPublished:     make(map[string]uint64),
		streamProcessed:     make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		EventsTracked:        copyCounts(m.eventsTracked),
		Aggregations:         copyCounts(m.aggregations),
		AggregationFailures:  copyCounts(m.aggregationFailures),
		SummaryCacheHits:     atomic.LoadUint64(&m.summaryCacheHits),
		SummaryCacheMisses:   atomic.LoadUint64(&m.summaryCacheMisses),
		StreamPublished:      copyCounts(m.streamPublished),
		StreamProcessed:      copyCounts(m.streamProcessed),
		StreamBatches:        atomic.LoadUint64(&m.streamBatches),
		StreamQueueDepth:     atomic.LoadInt64(&m.streamQueueDepth),
		TrackDurationCount:   atomic.LoadUint64(&m.trackDurationCount),
		TrackDurationTotalNs: atomic.LoadInt64(&m.trackDurationTotalNs),
	}
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, key string) {
	m.mu.Lock()
	counts[key]++
	m.mu.Unlock()
}

// IncEventTracked increments the tracked counter for eventType and status.
func (m *InMemoryRecorder) IncEventTracked(eventType, status string) {
	m.inc(m.eventsTracked, eventType+"/"+status)
}

// ObserveTrackDuration records ingestion duration.
func (m *InMemoryRecorder) ObserveTrackDuration(duration time.Duration) {
	atomic.AddUint64(&m.trackDurationCount, 1)
	atomic.AddInt64(&m.trackDurationTotalNs, duration.Nanoseconds())
}

// ObserveAggregationDuration counts a completed aggregation.
func (m *InMemoryRecorder) ObserveAggregationDuration(view string, duration time.Duration) {
	m.inc(m.aggregations, view)
}

// IncAggregationFailed counts a failed aggregation.
func (m *InMemoryRecorder) IncAggregationFailed(view string) {
	m.inc(m.aggregationFailures, view)
}

// IncSummaryCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncSummaryCacheHit() {
	atomic.AddUint64(&m.summaryCacheHits, 1)
}

// IncSummaryCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncSummaryCacheMiss() {
	atomic.AddUint64(&m.summaryCacheMisses, 1)
}

// IncStreamEventPublished counts stream publishes by status.
func (m *InMemoryRecorder) IncStreamEventPublished(status string) {
	m.inc(m.streamPublished, status)
}

// IncStreamEventProcessed counts worker outcomes by status.
func (m *InMemoryRecorder) IncStreamEventProcessed(status string) {
	m.inc(m.streamProcessed, status)
}

// ObserveStreamBatchSize counts processed batches.
func (m *InMemoryRecorder) ObserveStreamBatchSize(size int) {
	atomic.AddUint64(&m.streamBatches, 1)
}

// ObserveStreamBatchDuration is not tracked in memory.
func (m *InMemoryRecorder) ObserveStreamBatchDuration(duration time.Duration) {}

// SetStreamQueueDepth stores the latest queue depth.
func (m *InMemoryRecorder) SetStreamQueueDepth(depth int64) {
	atomic.StoreInt64(&m.streamQueueDepth, depth)
}

// ObserveStreamIngestLag is not tracked in memory.
func (m *InMemoryRecorder) ObserveStreamIngestLag(lag time.Duration) {}

func copyCounts(src map[string]uint64) map[string]uint64 {
	dst := make(map[string]uint64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
