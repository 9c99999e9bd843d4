package aggregate

import (
	"sort"

	"github.com/bazaarly/analytics/internal/model"
)

// counter counts occurrences per key and remembers first-seen order so
// that ranking ties are broken deterministically.
type counter struct {
	counts map[string]int64
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int64)}
}

func (c *counter) inc(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

// top returns buckets sorted by count descending, ties in first-seen
// order. limit <= 0 returns every bucket.
func (c *counter) top(limit int) []model.Bucket {
	buckets := make([]model.Bucket, 0, len(c.order))
	for _, key := range c.order {
		buckets = append(buckets, model.Bucket{Key: key, Count: c.counts[key]})
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Count > buckets[j].Count
	})

	if limit > 0 && len(buckets) > limit {
		buckets = buckets[:limit]
	}
	return buckets
}
