// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Ingestion metrics
	IncEventTracked(eventType, status string) // status: "success", "invalid", "failed", "dropped"
	ObserveTrackDuration(duration time.Duration)

	// Aggregation metrics
	ObserveAggregationDuration(view string, duration time.Duration) // view: "summary" or "realtime"
	IncAggregationFailed(view string)
	IncSummaryCacheHit()
	IncSummaryCacheMiss()

	// Stream pipeline metrics
	IncStreamEventPublished(status string) // status: "success" or "failed"
	IncStreamEventProcessed(status string) // status: "success", "failed", "dead_lettered"
	ObserveStreamBatchSize(size int)
	ObserveStreamBatchDuration(duration time.Duration)
	SetStreamQueueDepth(depth int64)
	ObserveStreamIngestLag(lag time.Duration)
}
