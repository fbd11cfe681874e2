package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "smartlinks:rl:"

// RateLimitResult is the outcome of one token-bucket check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int64
	// ResetAt is when the bucket will be full again.
	ResetAt time.Time
	// RetryAfter is zero when allowed, else whole seconds until one token is available.
	RetryAfter time.Duration
}

// bucketScript refills and takes one token atomically. Time is in milliseconds.
// Returns {allowed, tokens_left_scaled_by_1000}.
var bucketScript = redis.NewScript(`
local rate_ms  = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now      = tonumber(ARGV[3])
local ttl_ms   = tonumber(ARGV[4])

local state  = redis.call('HMGET', KEYS[1], 't', 'at')
local tokens = tonumber(state[1])
local at     = tonumber(state[2])
if tokens == nil or at == nil then
	tokens = capacity
	at = now
end

tokens = math.min(capacity, tokens + math.max(0, now - at) * rate_ms)

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', KEYS[1], 't', tostring(tokens), 'at', now)
redis.call('PEXPIRE', KEYS[1], ttl_ms)
return {allowed, math.floor(tokens * 1000)}
`)

// CheckIPRateLimit takes one token from the bucket for ip within scope.
// The IP is stored only as a truncated digest. Errors are returned to the
// caller, which decides whether to fail open.
func (c *Cache) CheckIPRateLimit(ctx context.Context, scope, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return nil, fmt.Errorf("rate limit %q: rate must be positive", scope)
	}
	if burst < 1 {
		burst = 1
	}

	ratePerMs := float64(ratePerSecond) / 1000
	// Idle buckets expire once they would have refilled completely.
	fullAfter := time.Duration(float64(burst)/float64(ratePerSecond)*float64(time.Second)) + time.Second
	now := time.Now()

	res, err := bucketScript.Run(ctx, c.client,
		[]string{rateLimitPrefix + scope + ":" + ipDigest(ip)},
		ratePerMs, burst, now.UnixMilli(), fullAfter.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %q: %w", scope, err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("rate limit %q: unexpected script reply %v", scope, res)
	}

	return bucketResult(res[0] == 1, float64(res[1])/1000, float64(ratePerSecond), burst, now), nil
}

// bucketResult derives the response fields from the tokens left after the check.
func bucketResult(allowed bool, tokens, ratePerSecond float64, burst int, now time.Time) *RateLimitResult {
	result := &RateLimitResult{
		Allowed:   allowed,
		Remaining: int64(math.Floor(tokens)),
		ResetAt:   now.Add(time.Duration((float64(burst) - tokens) / ratePerSecond * float64(time.Second))),
	}
	if !allowed {
		wait := math.Ceil((1 - tokens) / ratePerSecond)
		result.RetryAfter = time.Duration(math.Max(wait, 1)) * time.Second
	}
	return result
}

// ipDigest returns 16 hex chars of SHA-256(ip).
func ipDigest(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
