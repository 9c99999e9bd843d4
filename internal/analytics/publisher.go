package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/bazaarly/analytics/internal/metrics"
	"github.com/bazaarly/analytics/internal/model"
)

const (
	// StreamKey is the Redis stream for analytics events.
	StreamKey = "stream:analytics_events"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:analytics_events:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 1000000

	payloadField = "payload"
)

// Publisher is a Sink that appends events to a Redis stream. The worker
// drains the stream into the event store.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewPublisher creates a new stream publisher.
func NewPublisher(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With("component", "analytics.publisher"),
		metrics: recorder,
	}
}

// Write implements Sink. The event is durable once XADD returns.
func (p *Publisher) Write(ctx context.Context, e *model.EventRecord) error {
	streamID, err := p.Publish(ctx, e)
	if err != nil {
		p.metrics.IncStreamEventPublished("failed")
		return &StorageError{Op: "publish event", Err: err}
	}
	p.metrics.IncStreamEventPublished("success")
	p.logger.Debug("event published", "event_id", e.ID, "stream_id", streamID)
	return nil
}

// Publish adds an event to the stream and returns its stream id.
func (p *Publisher) Publish(ctx context.Context, e *model.EventRecord) (string, error) {
	data, err := EncodeEvent(e)
	if err != nil {
		return "", err
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",
		Values: map[string]interface{}{
			payloadField: data,
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return result, nil
}

// EncodeEvent serialises a record for the stream.
func EncodeEvent(e *model.EventRecord) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	return string(data), nil
}
