package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bazaarly/analytics/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

// AdvisoryLockID is the Postgres advisory lock that serializes DB tests
// across packages.
const AdvisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", AdvisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", AdvisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// ResetEventsSchema drops and recreates the analytics_events schema.
func ResetEventsSchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := ProjectRoot()
	if err != nil {
		return err
	}

	for _, name := range []string{
		"000001_analytics_events.down.sql",
		"000001_analytics_events.up.sql",
	} {
		migration, err := os.ReadFile(filepath.Join(root, "migrations", name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(migration)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}

	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestEvent creates a valid event of eventType at createdAt, carrying the
// properties its type requires.
func NewTestEvent(t testing.TB, eventType model.EventType, createdAt time.Time) *model.EventRecord {
	t.Helper()

	var props model.Properties
	switch eventType {
	case model.EventPageView:
		props = model.Properties{"page": "/home"}
	case model.EventProductView, model.EventAddToCart:
		props = model.Properties{"product_id": "7"}
	case model.EventPurchase:
		props = model.Properties{"order_id": UniqueID("order"), "items": []any{}}
	case model.EventFunnelStep:
		props = model.Properties{"funnel_id": "checkout", "step_id": "1", "action": "view"}
	case model.EventLiveStreamView:
		props = model.Properties{"stream_id": "stream-1"}
	case model.EventMessageSent, model.EventSocialShare:
		props = model.Properties{}
	default:
		t.Fatalf("NewTestEvent: unknown event type %q", eventType)
	}

	createdAt = createdAt.UTC()
	return &model.EventRecord{
		ID:         model.NewEventID(createdAt),
		EventType:  eventType,
		EventName:  string(eventType),
		Properties: props,
		CreatedAt:  createdAt,
	}
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
