package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bazaarly/analytics/internal/aggregate"
	"github.com/bazaarly/analytics/internal/metrics"
	"github.com/bazaarly/analytics/internal/model"
)

// Report views, used in errors and metrics.
const (
	ViewSummary  = "summary"
	ViewRealtime = "realtime"
)

// EventScanner streams the records matching a filter in created_at, id
// order. Returning an error from fn stops the scan.
type EventScanner interface {
	ScanWindow(ctx context.Context, filter model.EventFilter, fn func(*model.EventRecord) error) error
}

// SummaryCache stores computed summaries for a short time.
type SummaryCache interface {
	GetSummary(ctx context.Context, key string) (*model.AggregationResult, bool, error)
	SetSummary(ctx context.Context, key string, result *model.AggregationResult) error
}

// LiveStreamCounter reports how many live streams are on air.
type LiveStreamCounter interface {
	CountLiveStreams(ctx context.Context) (int64, error)
}

// Filter restricts a report to one user. The zero value covers all users;
// callers decide who may ask for that.
type Filter struct {
	UserID string
}

// Reporter computes summaries and the realtime view from the event store.
type Reporter struct {
	store   EventScanner
	cache   SummaryCache
	live    LiveStreamCounter
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics metrics.Recorder
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithSummaryCache enables caching of Summarize results.
func WithSummaryCache(cache SummaryCache) ReporterOption {
	return func(r *Reporter) { r.cache = cache }
}

// WithLiveStreams sets the source of CurrentLiveStreams.
func WithLiveStreams(counter LiveStreamCounter) ReporterOption {
	return func(r *Reporter) { r.live = counter }
}

// WithTimeout bounds each aggregation. Zero disables the bound.
func WithTimeout(timeout time.Duration) ReporterOption {
	return func(r *Reporter) { r.timeout = timeout }
}

// WithReporterClock overrides the clock that anchors windows.
func WithReporterClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) { r.now = now }
}

// NewReporter creates a Reporter.
func NewReporter(store EventScanner, logger *slog.Logger, recorder metrics.Recorder, opts ...ReporterOption) *Reporter {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	r := &Reporter{
		store:   store,
		now:     time.Now,
		logger:  logger.With("component", "analytics.reporter"),
		metrics: recorder,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Summarize aggregates the events of period ending now.
func (r *Reporter) Summarize(ctx context.Context, filter Filter, period model.Period) (*model.AggregationResult, error) {
	key := summaryKey(filter, period)
	if cached, ok := r.cachedSummary(ctx, key); ok {
		return cached, nil
	}

	start := time.Now()
	acc, err := r.scan(ctx, filter, period)
	if err != nil {
		r.metrics.IncAggregationFailed(ViewSummary)
		return nil, &AggregationError{View: ViewSummary, Err: err}
	}
	result := acc.Result()
	r.metrics.ObserveAggregationDuration(ViewSummary, time.Since(start))

	if r.cache != nil {
		if err := r.cache.SetSummary(ctx, key, result); err != nil {
			r.logger.Warn("failed to cache summary", "key", key, "error", err)
		}
	}
	return result, nil
}

// Realtime aggregates the last hour and adds active users, live streams
// and the most recent purchases.
func (r *Reporter) Realtime(ctx context.Context, filter Filter) (*model.RealtimeResult, error) {
	start := time.Now()

	acc, err := r.scan(ctx, filter, model.PeriodRealtime)
	if err != nil {
		r.metrics.IncAggregationFailed(ViewRealtime)
		return nil, &AggregationError{View: ViewRealtime, Err: err}
	}

	var liveStreams int64
	if r.live != nil {
		liveStreams, err = r.live.CountLiveStreams(ctx)
		if err != nil {
			r.metrics.IncAggregationFailed(ViewRealtime)
			return nil, &AggregationError{View: ViewRealtime, Err: fmt.Errorf("count live streams: %w", err)}
		}
	}

	r.metrics.ObserveAggregationDuration(ViewRealtime, time.Since(start))
	return acc.Realtime(liveStreams), nil
}

func (r *Reporter) scan(ctx context.Context, filter Filter, period model.Period) (*aggregate.Accumulator, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	from, to := period.Window(r.now().UTC())
	window := model.EventFilter{UserID: filter.UserID, From: from, To: to}

	acc := aggregate.NewAccumulator()
	err := r.store.ScanWindow(ctx, window, func(e *model.EventRecord) error {
		acc.Add(e)
		return nil
	})
	if err != nil {
		r.logger.Error("aggregation scan failed",
			"period", period,
			"user_id", filter.UserID,
			"error", err,
		)
		return nil, fmt.Errorf("scan %s window: %w", period, err)
	}
	return acc, nil
}

func (r *Reporter) cachedSummary(ctx context.Context, key string) (*model.AggregationResult, bool) {
	if r.cache == nil {
		return nil, false
	}
	result, ok, err := r.cache.GetSummary(ctx, key)
	if err != nil {
		r.logger.Warn("summary cache read failed", "key", key, "error", err)
		r.metrics.IncSummaryCacheMiss()
		return nil, false
	}
	if !ok {
		r.metrics.IncSummaryCacheMiss()
		return nil, false
	}
	r.metrics.IncSummaryCacheHit()
	return result, true
}

func summaryKey(filter Filter, period model.Period) string {
	if filter.UserID == "" {
		return fmt.Sprintf("%s:all", period)
	}
	return fmt.Sprintf("%s:user:%s", period, filter.UserID)
}
