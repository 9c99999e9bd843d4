package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bazaarly/analytics/internal/model"
)

const summaryKeyPrefix = "analytics:summary:"

// SummaryCache keeps aggregation results for a fixed TTL. A zero TTL
// disables it: reads always miss and writes are dropped.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSummaryCache creates a SummaryCache on c's client.
func (c *Cache) NewSummaryCache(ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: c.client, ttl: ttl}
}

// GetSummary returns the cached result for key. ok is false on a miss.
func (s *SummaryCache) GetSummary(ctx context.Context, key string) (*model.AggregationResult, bool, error) {
	if s.ttl <= 0 {
		return nil, false, nil
	}

	data, err := s.client.Get(ctx, summaryKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	result, err := decodeSummary(data)
	if err != nil {
		return nil, false, err
	}
	return result, true, nil
}

// SetSummary stores result under key for the cache TTL.
func (s *SummaryCache) SetSummary(ctx context.Context, key string, result *model.AggregationResult) error {
	if s.ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := s.client.Set(ctx, summaryKeyPrefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func decodeSummary(data []byte) (*model.AggregationResult, error) {
	var result model.AggregationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return &result, nil
}
