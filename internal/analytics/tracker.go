// Package analytics ingests marketplace events and computes summaries over them.
package analytics

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bazaarly/analytics/internal/enricher"
	"github.com/bazaarly/analytics/internal/metrics"
	"github.com/bazaarly/analytics/internal/model"
)

const (
	// DefaultCurrency applies when a value is given without a currency.
	DefaultCurrency = "EUR"

	// AsyncWriteTimeout bounds a fire-and-forget write.
	AsyncWriteTimeout = 2 * time.Second
)

// Sink persists one event record.
type Sink interface {
	Write(ctx context.Context, e *model.EventRecord) error
}

// EventWriter is the synchronous store behind DirectSink.
type EventWriter interface {
	Insert(ctx context.Context, e *model.EventRecord) error
}

type directSink struct {
	store EventWriter
}

// DirectSink writes each event straight to the store.
func DirectSink(store EventWriter) Sink {
	return directSink{store: store}
}

func (s directSink) Write(ctx context.Context, e *model.EventRecord) error {
	return s.store.Insert(ctx, e)
}

// TrackInput describes one event submission.
type TrackInput struct {
	Type       model.EventType
	Name       string
	Properties model.Properties
	UserID     string                // empty for anonymous callers
	Request    *model.RequestContext // optional; drives enrichment
	Value      *decimal.Decimal
	Currency   string // defaults to the tracker currency when Value is set
}

// For returns a copy of in attributed to userID and enriched from rc.
func (in TrackInput) For(userID string, rc *model.RequestContext) TrackInput {
	in.UserID = userID
	in.Request = rc
	return in
}

// Tracker validates, enriches and persists events.
type Tracker struct {
	sink            Sink
	enricher        *enricher.Enricher
	logger          *slog.Logger
	metrics         metrics.Recorder
	defaultCurrency string
	now             func() time.Time

	mu       sync.Mutex
	inflight sync.WaitGroup
	closed   bool
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithDefaultCurrency overrides DefaultCurrency.
func WithDefaultCurrency(code string) TrackerOption {
	return func(t *Tracker) {
		if normalized, err := NormalizeCurrency(code); err == nil {
			t.defaultCurrency = normalized
		}
	}
}

// WithTrackerClock overrides the clock that stamps CreatedAt.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker. A nil enricher uses one with placeholder geo.
func NewTracker(sink Sink, enr *enricher.Enricher, logger *slog.Logger, recorder metrics.Recorder, opts ...TrackerOption) *Tracker {
	if enr == nil {
		enr = enricher.New(nil)
	}
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	t := &Tracker{
		sink:            sink,
		enricher:        enr,
		logger:          logger.With("component", "analytics.tracker"),
		metrics:         recorder,
		defaultCurrency: DefaultCurrency,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track validates, enriches and writes one event, returning the stored record.
// Errors are *ValidationError or *StorageError.
func (t *Tracker) Track(ctx context.Context, in TrackInput) (*model.EventRecord, error) {
	start := time.Now()
	defer func() { t.metrics.ObserveTrackDuration(time.Since(start)) }()

	e, err := t.build(in)
	if err != nil {
		t.metrics.IncEventTracked(typeLabel(in.Type), "invalid")
		return nil, err
	}
	if err := t.write(ctx, e); err != nil {
		t.metrics.IncEventTracked(string(e.EventType), "failed")
		return nil, err
	}
	return e, nil
}

// TrackAsync validates and enriches in the caller's goroutine, then writes
// in the background. Only validation errors are returned; write failures
// are logged and counted as dropped.
func (t *Tracker) TrackAsync(in TrackInput) (*model.EventRecord, error) {
	e, err := t.build(in)
	if err != nil {
		t.metrics.IncEventTracked(typeLabel(in.Type), "invalid")
		return nil, err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.logger.Warn("tracker closed, dropping event", "event_id", e.ID, "event_type", e.EventType)
		t.metrics.IncEventTracked(string(e.EventType), "dropped")
		return e, nil
	}
	t.inflight.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.inflight.Done()

		ctx, cancel := context.WithTimeout(context.Background(), AsyncWriteTimeout)
		defer cancel()

		if err := t.write(ctx, e); err != nil {
			t.logger.Warn("async track failed",
				"event_id", e.ID,
				"event_type", e.EventType,
				"error", err,
			)
			t.metrics.IncEventTracked(string(e.EventType), "dropped")
		}
	}()
	return e, nil
}

// Shutdown stops accepting async writes and waits for in-flight ones.
func (t *Tracker) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.logger.Warn("tracker shutdown timed out with writes in flight")
		return ctx.Err()
	}
}

// typeLabel keeps the metric label set closed: anything outside
// AllEventTypes is counted as "unknown".
func typeLabel(t model.EventType) string {
	if t.IsValid() {
		return string(t)
	}
	return "unknown"
}

func (t *Tracker) build(in TrackInput) (*model.EventRecord, error) {
	if strings.TrimSpace(string(in.Type)) == "" {
		return nil, invalid("event_type", "is required")
	}
	eventType, err := model.ParseEventType(string(in.Type))
	if err != nil {
		return nil, invalid("event_type", "unknown event type %q", in.Type)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("event_name", "is required")
	}
	if len(name) > maxEventNameLength {
		return nil, invalid("event_name", "must be at most %d characters", maxEventNameLength)
	}

	if err := ValidateProperties(eventType, in.Properties); err != nil {
		return nil, err
	}

	props := make(model.Properties, len(in.Properties))
	for k, v := range in.Properties {
		props[k] = v
	}

	// Postgres keeps microseconds; truncate so the returned record matches
	// what a later read produces.
	now := t.now().UTC().Truncate(time.Microsecond)
	e := &model.EventRecord{
		ID:         model.NewEventID(now),
		EventType:  eventType,
		EventName:  name,
		Properties: props,
		UserID:     strings.TrimSpace(in.UserID),
		CreatedAt:  now,
	}

	if in.Value != nil {
		if in.Value.IsNegative() {
			return nil, invalid("value", "must not be negative")
		}
		currency := in.Currency
		if currency == "" {
			currency = t.defaultCurrency
		}
		code, err := NormalizeCurrency(currency)
		if err != nil {
			return nil, err
		}
		value := *in.Value
		e.Value = &value
		e.Currency = code
	}

	if in.Request != nil {
		t.enricher.Enrich(in.Request).Apply(e)
	}

	// Same checks the stream worker applies, so nothing accepted here is
	// refused by the store later.
	if err := ValidateRecord(e); err != nil {
		return nil, err
	}
	return e, nil
}

func (t *Tracker) write(ctx context.Context, e *model.EventRecord) error {
	if err := t.sink.Write(ctx, e); err != nil {
		var se *StorageError
		if errors.As(err, &se) {
			return err
		}
		return &StorageError{Op: "write event", Err: err}
	}
	t.metrics.IncEventTracked(string(e.EventType), "success")
	t.logger.Debug("event tracked", "event_id", e.ID, "event_type", e.EventType)
	return nil
}
