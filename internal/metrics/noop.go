package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncEventTracked is a no-op.
func (n *NoopRecorder) IncEventTracked(eventType, status string) {}

// ObserveTrackDuration is a no-op.
func (n *NoopRecorder) ObserveTrackDuration(duration time.Duration) {}

// ObserveAggregationDuration is a no-op.
func (n *NoopRecorder) ObserveAggregationDuration(view string, duration time.Duration) {}

// IncAggregationFailed is a no-op.
func (n *NoopRecorder) IncAggregationFailed(view string) {}

// IncSummaryCacheHit is a no-op.
func (n *NoopRecorder) IncSummaryCacheHit() {}

// IncSummaryCacheMiss is a no-op.
func (n *NoopRecorder) IncSummaryCacheMiss() {}

// IncStreamEventPublished is a no-op.
func (n *NoopRecorder) IncStreamEventPublished(status string) {}

// IncStreamEventProcessed is a no-op.
func (n *NoopRecorder) IncStreamEventProcessed(status string) {}

// ObserveStreamBatchSize is a no-op.
func (n *NoopRecorder) ObserveStreamBatchSize(size int) {}

// ObserveStreamBatchDuration is a no-op.
func (n *NoopRecorder) ObserveStreamBatchDuration(duration time.Duration) {}

// SetStreamQueueDepth is a no-op.
func (n *NoopRecorder) SetStreamQueueDepth(depth int64) {}

// ObserveStreamIngestLag is a no-op.
func (n *NoopRecorder) ObserveStreamIngestLag(lag time.Duration) {}
