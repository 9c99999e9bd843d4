package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bazaarly/analytics/internal/metrics"
	"github.com/bazaarly/analytics/internal/model"
)

const (
	// ConsumerGroup is the Redis consumer group name.
	ConsumerGroup = "event_writers"

	// DefaultBatchSize is the max events per batch.
	DefaultBatchSize = 500

	// DefaultBlockTimeout is how long to block waiting for messages.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultClaimInterval is how often to scan pending messages.
	DefaultClaimInterval = 10 * time.Second

	// DefaultClaimIdle is the idle time before reclaiming pending messages.
	DefaultClaimIdle = 30 * time.Second

	// DefaultMetricsInterval is how often to refresh queue depth metrics.
	DefaultMetricsInterval = 5 * time.Second

	minRetryDelay    = 500 * time.Millisecond
	maxRetryDelay    = 30 * time.Second
	maxDeadLetterLen = 10000
)

// Repository persists events read from the stream. Inserting an id that
// already exists must be a no-op so redelivered messages are harmless.
// Failures the store will never accept for a given record must wrap
// model.ErrEventRejected.
type Repository interface {
	BulkInsert(ctx context.Context, events []*model.EventRecord) error
	Insert(ctx context.Context, e *model.EventRecord) error
}

// Worker moves events from the Redis stream into the event store.
type Worker struct {
	redis           *redis.Client
	repo            Repository
	logger          *slog.Logger
	metrics         metrics.Recorder
	consumerID      string
	batchSize       int
	blockTimeout    time.Duration
	claimInterval   time.Duration
	claimIdle       time.Duration
	metricsInterval time.Duration

	// Owned by the Run goroutine.
	claimCursor string
	nextClaim   time.Time
	nextDepth   time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a new stream worker.
func NewWorker(client *redis.Client, repo Repository, logger *slog.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		redis:           client,
		repo:            repo,
		logger:          logger.With("component", "analytics.worker", "consumer_id", consumerID),
		metrics:         recorder,
		consumerID:      consumerID,
		batchSize:       DefaultBatchSize,
		blockTimeout:    DefaultBlockTimeout,
		claimInterval:   DefaultClaimInterval,
		claimIdle:       DefaultClaimIdle,
		metricsInterval: DefaultMetricsInterval,
		claimCursor:     "0-0",
	}
}

// SetBatchSize overrides the default batch size.
func (w *Worker) SetBatchSize(size int) {
	if size > 0 {
		w.batchSize = size
	}
}

// SetBlockTimeout overrides the default blocking timeout.
func (w *Worker) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		w.blockTimeout = timeout
	}
}

// SetClaimInterval overrides the default pending-claim interval.
func (w *Worker) SetClaimInterval(interval time.Duration) {
	if interval > 0 {
		w.claimInterval = interval
	}
}

// SetClaimIdle overrides the default pending idle threshold.
func (w *Worker) SetClaimIdle(idle time.Duration) {
	if idle > 0 {
		w.claimIdle = idle
	}
}

// SetMetricsInterval overrides the default metrics refresh interval.
func (w *Worker) SetMetricsInterval(interval time.Duration) {
	if interval > 0 {
		w.metricsInterval = interval
	}
}

// Run consumes the stream until ctx is cancelled or Shutdown is called.
// Failed polls are retried with exponential backoff.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.done != nil {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.mu.Unlock()
	defer close(w.done)

	err := w.redis.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !isConsumerGroupExistsError(err) {
		return fmt.Errorf("ensure consumer group: %w", err)
	}
	w.logger.Info("stream worker started", "batch_size", w.batchSize)

	failures := 0
	for ctx.Err() == nil {
		err := w.poll(ctx)
		if err == nil {
			failures = 0
			continue
		}
		if ctx.Err() != nil {
			break
		}

		failures++
		delay := retryDelay(failures)
		w.logger.Error("stream poll failed",
			"error", err,
			"consecutive_failures", failures,
			"retry_in", delay,
		)
		if !sleep(ctx, delay) {
			break
		}
	}

	w.logger.Info("stream worker stopped")
	return nil
}

// Shutdown cancels Run and waits for it to return. Messages left
// unacknowledged are reclaimed by the next worker. It matches
// server.ShutdownFunc.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("stream worker shutdown timed out")
		return ctx.Err()
	}
}

// poll handles one batch: stale pending messages first, otherwise new ones.
func (w *Worker) poll(ctx context.Context) error {
	w.refreshQueueDepth(ctx)

	messages, err := w.claimStale(ctx)
	if err != nil {
		w.logger.Warn("failed to claim pending messages", "error", err)
	}
	if len(messages) == 0 {
		if messages, err = w.readNew(ctx); err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}
	return w.handle(ctx, messages)
}

// handle stores what it can, dead-letters what can never be stored, and
// acknowledges both. Messages hit by a retryable failure are left
// unacknowledged for the claim loop.
func (w *Worker) handle(ctx context.Context, messages []redis.XMessage) error {
	start := time.Now()

	batch, rejected := decodeBatch(messages)
	res := storeBatch(ctx, w.repo, batch)
	rejected = append(rejected, res.rejected...)

	dead := make([]rejection, 0, len(rejected))
	for _, r := range rejected {
		if err := w.deadLetter(ctx, r); err != nil {
			w.logger.Error("failed to write to dead-letter queue", "message_id", r.msg.ID, "error", err)
			continue
		}
		dead = append(dead, r)
	}

	if n := len(res.stored); n > 0 {
		w.metrics.ObserveStreamBatchSize(n)
		w.metrics.ObserveStreamBatchDuration(time.Since(start))
		for _, d := range res.stored {
			w.metrics.IncStreamEventProcessed("success")
			w.metrics.ObserveStreamIngestLag(time.Since(d.event.CreatedAt))
		}
	}
	for range res.pending {
		w.metrics.IncStreamEventProcessed("failed")
	}

	if err := w.ack(ctx, messageIDs(res.stored, dead)); err != nil {
		return err
	}

	w.logger.Info("batch handled",
		"read", len(messages),
		"stored", len(res.stored),
		"dead_lettered", len(dead),
		"pending", len(res.pending),
		"duration_ms", float64(time.Since(start).Microseconds())/1000,
	)
	if res.err != nil {
		return fmt.Errorf("store events: %d left pending: %w", len(res.pending), res.err)
	}
	return nil
}

func (w *Worker) claimStale(ctx context.Context) ([]redis.XMessage, error) {
	if w.claimInterval <= 0 || w.claimIdle <= 0 || time.Now().Before(w.nextClaim) {
		return nil, nil
	}
	w.nextClaim = time.Now().Add(w.claimInterval)

	messages, cursor, err := w.redis.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		MinIdle:  w.claimIdle,
		Start:    w.claimCursor,
		Count:    int64(w.batchSize),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	if cursor != "" {
		w.claimCursor = cursor
	}
	return messages, nil
}

func (w *Worker) readNew(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := w.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: w.consumerID,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(w.batchSize),
		Block:    w.blockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

func (w *Worker) refreshQueueDepth(ctx context.Context) {
	if w.metricsInterval <= 0 || time.Now().Before(w.nextDepth) {
		return
	}
	w.nextDepth = time.Now().Add(w.metricsInterval)

	groups, err := w.redis.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		w.logger.Warn("failed to read stream group info", "error", err)
		return
	}
	for _, group := range groups {
		if group.Name == ConsumerGroup {
			w.metrics.SetStreamQueueDepth(group.Pending + group.Lag)
			return
		}
	}
}

// deadLetter copies a message and the reason it was refused to the
// dead-letter stream.
func (w *Worker) deadLetter(ctx context.Context, r rejection) error {
	w.logger.Warn("dead-lettering message",
		"message_id", r.msg.ID,
		"reason", r.reason,
		"detail", r.err.Error(),
	)

	err := w.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: maxDeadLetterLen,
		Approx: true,
		Values: map[string]interface{}{
			"original_id":      r.msg.ID,
			"original_stream":  StreamKey,
			"reason":           r.reason,
			"detail":           r.err.Error(),
			"payload":          r.msg.Values[payloadField],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd dead letter: %w", err)
	}

	w.metrics.IncStreamEventProcessed("dead_lettered")
	return nil
}

func (w *Worker) ack(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := w.redis.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// retryDelay doubles from minRetryDelay per consecutive failure, capped
// at maxRetryDelay.
func retryDelay(failures int) time.Duration {
	delay := minRetryDelay
	for i := 1; i < failures && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// isConsumerGroupExistsError checks if the error is "BUSYGROUP" (group exists).
func isConsumerGroupExistsError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
