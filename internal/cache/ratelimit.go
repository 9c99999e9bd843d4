package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// ingestLimitPrefix namespaces per-client buckets for the ingestion routes.
const ingestLimitPrefix = "ratelimit:ingest:"

// Limit is a token bucket: Rate tokens per second refill up to Burst.
type Limit struct {
	Rate  float64
	Burst int
}

// Decision is the outcome of taking one token.
type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration // zero when allowed
	ResetAt    time.Time     // when the bucket is full again
}

// tokenBucket refills at a per-millisecond rate, takes one token if it can,
// and lets the key expire once the bucket would be full anyway.
// Returns {allowed, wait_ms, remaining, full_in_ms}.
var tokenBucket = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1]) or burst
local ts = tonumber(state[2]) or now
if now > ts then
	tokens = math.min(burst, tokens + (now - ts) * rate)
end

local allowed, wait = 0, 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	wait = math.ceil((1 - tokens) / rate)
end

local full = math.ceil((burst - tokens) / rate)
redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', now)
redis.call('PEXPIRE', KEYS[1], full + 1000)

return {allowed, wait, math.floor(tokens), full}
`)

// AllowIngest takes one token from the bucket of the client at ip. A zero
// limit allows everything. Errors are returned so the caller decides
// whether to fail open.
func (c *Cache) AllowIngest(ctx context.Context, ip string, limit Limit) (Decision, error) {
	if limit.Rate <= 0 || limit.Burst <= 0 {
		return Decision{Allowed: true, Remaining: int64(limit.Burst)}, nil
	}

	now := time.Now()
	res, err := tokenBucket.Run(ctx, c.client,
		[]string{ingestLimitPrefix + clientKey(ip)},
		limit.Rate/1000, limit.Burst, now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("token bucket: %w", err)
	}
	return decide(now, res)
}

func decide(now time.Time, res []int64) (Decision, error) {
	if len(res) != 4 {
		return Decision{}, fmt.Errorf("token bucket: got %d values, want 4", len(res))
	}
	return Decision{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Remaining:  res[2],
		ResetAt:    now.Add(time.Duration(res[3]) * time.Millisecond),
	}, nil
}

// clientKey hashes the address so raw IPs never land in Redis.
func clientKey(ip string) string {
	sum := blake2b.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
