package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultLiveStreamsKey is the set the streaming service keeps its on-air
// stream ids in.
const DefaultLiveStreamsKey = "live_streams"

// LiveStreams reads the number of streams currently on air. The set is
// owned by the streaming service; this side only counts it.
type LiveStreams struct {
	client *redis.Client
	key    string
}

// NewLiveStreams creates a LiveStreams reader for the set at key.
func (c *Cache) NewLiveStreams(key string) *LiveStreams {
	if key == "" {
		key = DefaultLiveStreamsKey
	}
	return &LiveStreams{client: c.client, key: key}
}

// CountLiveStreams returns the cardinality of the live-stream set. A missing
// set counts as zero.
func (l *LiveStreams) CountLiveStreams(ctx context.Context) (int64, error) {
	n, err := l.client.SCard(ctx, l.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard %s failed: %w", l.key, err)
	}
	return n, nil
}
