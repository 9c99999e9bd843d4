//go:build integration

package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bazaarly/analytics/internal/analytics"
	"github.com/bazaarly/analytics/internal/cache"
	"github.com/bazaarly/analytics/internal/metrics"
	"github.com/bazaarly/analytics/internal/repository"
	"github.com/bazaarly/analytics/internal/testutil"
)

func TestAnalyticsStreamIngestAndSummary(t *testing.T) {
	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	repo, err := repository.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	eventRepo := repository.NewEventRepository(repo)

	unlock, err := testutil.AcquireDBLock(ctx, eventRepo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := testutil.ResetEventsSchema(ctx, eventRepo.Pool()); err != nil {
		t.Fatalf("reset events schema: %v", err)
	}

	cacheClient, err := cache.New(ctx, redisURL)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() {
		_ = cacheClient.Close()
	})

	if err := testutil.FlushRedis(ctx, cacheClient.Client()); err != nil {
		t.Fatalf("flush redis: %v", err)
	}

	recorder := metrics.NewInMemory()
	logger := testLogger()

	publisher := analytics.NewPublisher(cacheClient.Client(), logger, recorder)
	tracker := analytics.NewTracker(publisher, nil, logger, recorder)
	reporter := analytics.NewReporter(eventRepo, logger, recorder,
		analytics.WithLiveStreams(cacheClient.NewLiveStreams(cache.DefaultLiveStreamsKey)),
		analytics.WithReporterClock(func() time.Time { return time.Now().Add(time.Second) }),
	)

	worker := analytics.NewWorker(cacheClient.Client(), eventRepo, logger, "test-consumer", recorder)
	worker.SetBlockTimeout(200 * time.Millisecond)
	worker.SetClaimInterval(200 * time.Millisecond)
	worker.SetMetricsInterval(200 * time.Millisecond)
	worker.SetBatchSize(100)

	workerCtx, cancel := context.WithCancel(ctx)
	workerErr := make(chan error, 1)
	go func() {
		workerErr <- worker.Run(workerCtx)
	}()
	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		defer done()
		_ = tracker.Shutdown(shutdownCtx)
		cancel()
		select {
		case <-workerErr:
		case <-time.After(2 * time.Second):
		}
	})

	router := NewRouter(RouterConfig{
		Logger:    logger,
		Version:   "test",
		Analytics: NewAnalyticsHandler(tracker, logger),
		Reports:   NewReportHandler(reporter, logger),
	})

	user := testutil.UniqueID("user")
	post(t, router, "/api/analytics/page-view", `{"page":"/home"}`, user, http.StatusAccepted)
	post(t, router, "/api/analytics/purchase", `{"orderId":"o-1","value":99.90}`, user, http.StatusCreated)

	wantRevenue := decimal.RequireFromString("99.90")
	deadline := time.Now().Add(5 * time.Second)

	var last summaryBody
	for time.Now().Before(deadline) {
		last = fetchSummary(t, router, user)
		if last.Summary.TotalEvents == 2 && last.Summary.Revenue.Equal(wantRevenue) {
			if last.Summary.EventsByType["page_view"] != 1 || last.Summary.EventsByType["purchase"] != 1 {
				t.Fatalf("unexpected events_by_type %v", last.Summary.EventsByType)
			}
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("expected 2 events and revenue %s, got %d and %s",
		wantRevenue, last.Summary.TotalEvents, last.Summary.Revenue)
}

func post(t *testing.T, router *chi.Mux, path, body, userID string, wantStatus int) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)
	req.Header.Set("User-Agent", chromeUA)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("POST %s: expected %d, got %d: %s", path, wantStatus, rec.Code, rec.Body.String())
	}
}

func fetchSummary(t *testing.T, router *chi.Mux, userID string) summaryBody {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/analytics/summary?period=day", nil)
	req.Header.Set("X-User-ID", userID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status %d: %s", rec.Code, rec.Body.String())
	}
	return decodeBody[summaryBody](t, rec)
}
