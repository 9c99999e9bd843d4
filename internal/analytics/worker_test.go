package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bazaarly/analytics/internal/model"
)

// pickyRepo stores everything except the ids listed in refuse, which fail
// with the given error both in bulk and one at a time.
type pickyRepo struct {
	mu      sync.Mutex
	stored  []string
	refuse  map[string]error
	bulks   int
	singles int
}

func (r *pickyRepo) BulkInsert(_ context.Context, events []*model.EventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bulks++
	for _, e := range events {
		if err := r.refuse[e.ID]; err != nil {
			return fmt.Errorf("batch insert event %s: %w", e.ID, err)
		}
	}
	for _, e := range events {
		r.stored = append(r.stored, e.ID)
	}
	return nil
}

func (r *pickyRepo) Insert(_ context.Context, e *model.EventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.singles++
	if err := r.refuse[e.ID]; err != nil {
		return fmt.Errorf("insert event %s: %w", e.ID, err)
	}
	r.stored = append(r.stored, e.ID)
	return nil
}

func streamBatch(t *testing.T, n int) []delivery {
	t.Helper()
	batch := make([]delivery, n)
	for i := range batch {
		e := validRecord()
		e.ID = fmt.Sprintf("evt-%d", i)
		batch[i] = delivery{msg: redis.XMessage{ID: fmt.Sprintf("%d-0", i+1)}, event: e}
	}
	return batch
}

func deliveryIDs(ds []delivery) []string {
	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.msg.ID
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStoreBatch_BulkSuccess(t *testing.T) {
	t.Parallel()

	repo := &pickyRepo{}
	res := storeBatch(context.Background(), repo, streamBatch(t, 3))

	if res.err != nil || len(res.rejected) != 0 || len(res.pending) != 0 {
		t.Fatalf("result = %+v, want everything stored", res)
	}
	if got := deliveryIDs(res.stored); !equalIDs(got, []string{"1-0", "2-0", "3-0"}) {
		t.Errorf("stored = %v", got)
	}
	if repo.bulks != 1 || repo.singles != 0 {
		t.Errorf("bulks = %d, singles = %d; want one bulk insert only", repo.bulks, repo.singles)
	}
}

func TestStoreBatch_RefusedRecordIsSplitOut(t *testing.T) {
	t.Parallel()

	// What the repository returns for a NUL inside a text column.
	refused := fmt.Errorf("%w: ERROR: invalid byte sequence for encoding \"UTF8\": 0x00 (SQLSTATE 22021)", model.ErrEventRejected)
	repo := &pickyRepo{refuse: map[string]error{"evt-1": refused}}

	res := storeBatch(context.Background(), repo, streamBatch(t, 3))

	if res.err != nil {
		t.Fatalf("err = %v, want nil", res.err)
	}
	if got := deliveryIDs(res.stored); !equalIDs(got, []string{"1-0", "3-0"}) {
		t.Errorf("stored = %v, want the two good messages", got)
	}
	if len(res.rejected) != 1 {
		t.Fatalf("rejected = %+v, want one", res.rejected)
	}
	r := res.rejected[0]
	if r.msg.ID != "2-0" || r.reason != ReasonRejectedByStore || !errors.Is(r.err, model.ErrEventRejected) {
		t.Errorf("rejection = %+v", r)
	}
	if len(res.pending) != 0 {
		t.Errorf("pending = %v, want none", deliveryIDs(res.pending))
	}
	if !equalIDs(messageIDs(res.stored, res.rejected), []string{"1-0", "3-0", "2-0"}) {
		t.Error("every message must be acknowledged")
	}
}

func TestStoreBatch_RetryableFailureLeavesRestPending(t *testing.T) {
	t.Parallel()

	repo := &pickyRepo{refuse: map[string]error{"evt-1": errStoreDown}}

	res := storeBatch(context.Background(), repo, streamBatch(t, 3))

	if !errors.Is(res.err, errStoreDown) {
		t.Fatalf("err = %v, want errStoreDown", res.err)
	}
	if got := deliveryIDs(res.stored); !equalIDs(got, []string{"1-0"}) {
		t.Errorf("stored = %v", got)
	}
	if got := deliveryIDs(res.pending); !equalIDs(got, []string{"2-0", "3-0"}) {
		t.Errorf("pending = %v", got)
	}
	if len(res.rejected) != 0 {
		t.Errorf("retryable failure must not dead-letter: %+v", res.rejected)
	}
	if repo.singles != 2 {
		t.Errorf("singles = %d, want the fallback to stop at the failure", repo.singles)
	}
}

func TestStoreBatch_Empty(t *testing.T) {
	t.Parallel()

	repo := &pickyRepo{}
	res := storeBatch(context.Background(), repo, nil)
	if res.err != nil || len(res.stored) != 0 || repo.bulks != 0 {
		t.Errorf("result = %+v, bulks = %d", res, repo.bulks)
	}
}

func TestDecodeBatch(t *testing.T) {
	t.Parallel()

	good := validRecord()
	goodPayload, err := EncodeEvent(good)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}
	nul := validRecord()
	nul.Properties["note"] = "a\x00b"
	nulPayload, err := EncodeEvent(nul)
	if err != nil {
		t.Fatalf("EncodeEvent() error = %v", err)
	}

	batch, rejected := decodeBatch([]redis.XMessage{
		{ID: "1-0", Values: map[string]interface{}{"payload": goodPayload}},
		{ID: "2-0", Values: map[string]interface{}{"payload": nulPayload}},
		{ID: "3-0", Values: map[string]interface{}{}},
	})

	if len(batch) != 1 || batch[0].event.ID != good.ID {
		t.Fatalf("batch = %v, want only the good message", deliveryIDs(batch))
	}
	want := map[string]string{"2-0": ReasonValidationError, "3-0": ReasonInvalidFormat}
	if len(rejected) != len(want) {
		t.Fatalf("rejected = %+v", rejected)
	}
	for _, r := range rejected {
		if want[r.msg.ID] != r.reason {
			t.Errorf("%s: reason = %q, want %q", r.msg.ID, r.reason, want[r.msg.ID])
		}
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{4, 4 * time.Second},
		{7, maxRetryDelay},
		{1000, maxRetryDelay},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.failures); got != tt.want {
			t.Errorf("retryDelay(%d) = %s, want %s", tt.failures, got, tt.want)
		}
	}
}

func TestSleep_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleep(ctx, time.Hour) {
		t.Error("sleep() = true after cancel")
	}
	if !sleep(context.Background(), time.Millisecond) {
		t.Error("sleep() = false without cancel")
	}
}
