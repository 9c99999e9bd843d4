//go:build integration

package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bazaarly/analytics/internal/model"
	"github.com/bazaarly/analytics/internal/testutil"
)

func newCacheTestEnv(t *testing.T) (context.Context, *Cache) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}

	ctx := context.Background()
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	c, err := New(ctx, redisURL)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return ctx, c
}

func TestIntegrationSummaryCache_RoundTrip(t *testing.T) {
	ctx, c := newCacheTestEnv(t)
	s := c.NewSummaryCache(time.Minute)

	if _, ok, err := s.GetSummary(ctx, "day:all"); err != nil || ok {
		t.Fatalf("GetSummary() on empty cache = %v, %v; want miss", ok, err)
	}

	in := &model.AggregationResult{
		TotalEvents:  3,
		EventsByType: map[model.EventType]int64{model.EventPurchase: 3},
		Revenue:      decimal.RequireFromString("0.30"),
	}
	if err := s.SetSummary(ctx, "day:all", in); err != nil {
		t.Fatalf("SetSummary() error = %v", err)
	}

	out, ok, err := s.GetSummary(ctx, "day:all")
	if err != nil || !ok {
		t.Fatalf("GetSummary() = %v, %v; want hit", ok, err)
	}
	if out.TotalEvents != 3 || !out.Revenue.Equal(in.Revenue) {
		t.Errorf("GetSummary() = %+v, want %+v", out, in)
	}

	ttl, err := c.Client().TTL(ctx, summaryKeyPrefix+"day:all").Result()
	if err != nil {
		t.Fatal(err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("TTL = %v, want within (0, 1m]", ttl)
	}
}

func TestIntegrationLiveStreams_Count(t *testing.T) {
	ctx, c := newCacheTestEnv(t)
	live := c.NewLiveStreams("test:live_streams")

	n, err := live.CountLiveStreams(ctx)
	if err != nil {
		t.Fatalf("CountLiveStreams() error = %v", err)
	}
	if n != 0 {
		t.Errorf("CountLiveStreams() on missing set = %d, want 0", n)
	}

	if err := c.Client().SAdd(ctx, "test:live_streams", "s1", "s2", "s3", "s4").Err(); err != nil {
		t.Fatal(err)
	}
	n, err = live.CountLiveStreams(ctx)
	if err != nil {
		t.Fatalf("CountLiveStreams() error = %v", err)
	}
	if n != 4 {
		t.Errorf("CountLiveStreams() = %d, want 4", n)
	}
}

func TestIntegrationLiveStreams_WrongType(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	if err := c.Client().Set(ctx, "test:live_streams", "oops", 0).Err(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.NewLiveStreams("test:live_streams").CountLiveStreams(ctx); err == nil {
		t.Error("CountLiveStreams() on a string key should fail")
	}
}

// TestIntegrationIngestLimitConcurrency verifies the token bucket holds
// under concurrent callers.
func TestIntegrationIngestLimitConcurrency(t *testing.T) {
	ctx, c := newCacheTestEnv(t)

	testIP := "192.168.1.100"
	rps := 1
	burst := 5
	limit := Limit{Rate: float64(rps), Burst: burst}

	var allowed, rejected int64
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := c.AllowIngest(ctx, testIP, limit)
			if err != nil {
				t.Errorf("AllowIngest error: %v", err)
				return
			}
			if result.Allowed {
				atomic.AddInt64(&allowed, 1)
			} else {
				atomic.AddInt64(&rejected, 1)
			}
		}()
	}
	wg.Wait()

	t.Logf("ingest limit: %d allowed, %d rejected", allowed, rejected)

	if allowed > int64(burst+rps) {
		t.Errorf("Too many requests allowed: %d (expected <= %d)", allowed, burst+rps)
	}
	if rejected == 0 {
		t.Error("Expected some requests to be rejected")
	}
}
