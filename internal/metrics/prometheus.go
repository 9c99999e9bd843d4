package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bazaarly_analytics"

// PrometheusRecorder exports metrics through a dedicated registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	eventsTracked       *prometheus.CounterVec
	trackDuration       prometheus.Histogram
	aggregationDuration *prometheus.HistogramVec
	aggregationFailures *prometheus.CounterVec
	summaryCache        *prometheus.CounterVec
	streamPublished     *prometheus.CounterVec
	streamProcessed     *prometheus.CounterVec
	streamBatchSize     prometheus.Histogram
	streamBatchDuration prometheus.Histogram
	streamQueueDepth    prometheus.Gauge
	streamIngestLag     prometheus.Histogram
}

// NewPrometheus creates a recorder with its own registry, including Go
// runtime and process collectors.
func NewPrometheus() *PrometheusRecorder {
	p := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		eventsTracked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_tracked_total",
			Help:      "Events submitted for ingestion by type and outcome.",
		}, []string{"event_type", "status"}),
		trackDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "track_duration_seconds",
			Help:      "Time spent validating, enriching and writing one event.",
			Buckets:   prometheus.DefBuckets,
		}),
		aggregationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Time spent computing a summary or realtime view.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"view"}),
		aggregationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_failures_total",
			Help:      "Aggregations that failed.",
		}, []string{"view"}),
		summaryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_cache_requests_total",
			Help:      "Summary cache lookups by result.",
		}, []string{"result"}),
		streamPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_published_total",
			Help:      "Events written to the ingestion stream.",
		}, []string{"status"}),
		streamProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_processed_total",
			Help:      "Events handled by the ingestion worker.",
		}, []string{"status"}),
		streamBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_batch_size",
			Help:      "Events per worker batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		streamBatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_batch_duration_seconds",
			Help:      "Time spent persisting one worker batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		streamQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_queue_depth",
			Help:      "Pending plus unread entries in the ingestion stream.",
		}),
		streamIngestLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_ingest_lag_seconds",
			Help:      "Delay between event creation and persistence.",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300},
		}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.eventsTracked,
		p.trackDuration,
		p.aggregationDuration,
		p.aggregationFailures,
		p.summaryCache,
		p.streamPublished,
		p.streamProcessed,
		p.streamBatchSize,
		p.streamBatchDuration,
		p.streamQueueDepth,
		p.streamIngestLag,
	)
	return p
}

// Handler serves the registry in the Prometheus text format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry exposes the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// IncEventTracked implements Recorder.
func (p *PrometheusRecorder) IncEventTracked(eventType, status string) {
	p.eventsTracked.WithLabelValues(eventType, status).Inc()
}

// ObserveTrackDuration implements Recorder.
func (p *PrometheusRecorder) ObserveTrackDuration(duration time.Duration) {
	p.trackDuration.Observe(duration.Seconds())
}

// ObserveAggregationDuration implements Recorder.
func (p *PrometheusRecorder) ObserveAggregationDuration(view string, duration time.Duration) {
	p.aggregationDuration.WithLabelValues(view).Observe(duration.Seconds())
}

// IncAggregationFailed implements Recorder.
func (p *PrometheusRecorder) IncAggregationFailed(view string) {
	p.aggregationFailures.WithLabelValues(view).Inc()
}

// IncSummaryCacheHit implements Recorder.
func (p *PrometheusRecorder) IncSummaryCacheHit() {
	p.summaryCache.WithLabelValues("hit").Inc()
}

// IncSummaryCacheMiss implements Recorder.
func (p *PrometheusRecorder) IncSummaryCacheMiss() {
	p.summaryCache.WithLabelValues("miss").Inc()
}

// IncStreamEventPublished implements Recorder.
func (p *PrometheusRecorder) IncStreamEventPublished(status string) {
	p.streamPublished.WithLabelValues(status).Inc()
}

// IncStreamEventProcessed implements Recorder.
func (p *PrometheusRecorder) IncStreamEventProcessed(status string) {
	p.streamProcessed.WithLabelValues(status).Inc()
}

// ObserveStreamBatchSize implements Recorder.
func (p *PrometheusRecorder) ObserveStreamBatchSize(size int) {
	p.streamBatchSize.Observe(float64(size))
}

// ObserveStreamBatchDuration implements Recorder.
func (p *PrometheusRecorder) ObserveStreamBatchDuration(duration time.Duration) {
	p.streamBatchDuration.Observe(duration.Seconds())
}

// SetStreamQueueDepth implements Recorder.
func (p *PrometheusRecorder) SetStreamQueueDepth(depth int64) {
	p.streamQueueDepth.Set(float64(depth))
}

// ObserveStreamIngestLag implements Recorder.
func (p *PrometheusRecorder) ObserveStreamIngestLag(lag time.Duration) {
	p.streamIngestLag.Observe(lag.Seconds())
}
