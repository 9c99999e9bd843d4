package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/bazaarly/analytics/internal/model"
)

var errStoreDown = errors.New("store down")

// memStore is an in-memory event store honouring the same window and
// ordering contract as the Postgres repository.
type memStore struct {
	mu      sync.Mutex
	events  []*model.EventRecord
	failAll bool
	scans   int
}

func (s *memStore) Insert(_ context.Context, e *model.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errStoreDown
	}
	clone := *e
	s.events = append(s.events, &clone)
	return nil
}

func (s *memStore) BulkInsert(ctx context.Context, events []*model.EventRecord) error {
	for _, e := range events {
		if s.has(e.ID) {
			continue
		}
		if err := s.Insert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (s *memStore) ScanWindow(ctx context.Context, filter model.EventFilter, fn func(*model.EventRecord) error) error {
	s.mu.Lock()
	s.scans++
	if s.failAll {
		s.mu.Unlock()
		return errStoreDown
	}
	var matched []*model.EventRecord
	for _, e := range s.events {
		if filter.Matches(e) {
			clone := *e
			matched = append(matched, &clone)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	for _, e := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *memStore) setFailing(fail bool) {
	s.mu.Lock()
	s.failAll = fail
	s.mu.Unlock()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
