package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds configuration for the token bucket.
type Config struct {
	RequestsPerSecond float64 // refill rate
	BurstCapacity     int     // bucket size
	Enabled           bool
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Remaining int64
}

// bucketTTLSeconds keeps idle buckets around long enough to refill completely.
const bucketTTLSeconds = 60

// tokenBucket refills at ARGV[1] tokens/s up to ARGV[2] and takes one token.
// ARGV[3] is the caller's clock in milliseconds so tests can drive time.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local bucket = redis.call('HMGET', key, 'last_refill', 'tokens')
local last_refill = tonumber(bucket[1]) or now
local tokens = tonumber(bucket[2]) or capacity

local elapsed = math.max(0, now - last_refill) / 1000
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
end

redis.call('HSET', key, 'last_refill', now, 'tokens', tokens)
redis.call('EXPIRE', key, ttl)
return {allowed, math.floor(tokens)}
`)

// Limiter is a Redis token bucket shared by the HTTP and gRPC transports.
type Limiter struct {
	client redis.Scripter
	config Config
	now    func() time.Time
}

// New creates a token bucket limiter.
func New(client redis.Scripter, config Config) *Limiter {
	return &Limiter{client: client, config: config, now: time.Now}
}

// Enabled reports whether requests should be checked at all.
func (l *Limiter) Enabled() bool {
	return l != nil && l.client != nil && l.config.Enabled
}

// Config returns the limiter configuration.
func (l *Limiter) Config() Config {
	return l.config
}

// Key builds the bucket key for a client on a route.
func Key(route, client string) string {
	return fmt.Sprintf("ratelimit:tb:%s:%s", route, client)
}

// Allow takes one token from the bucket at key. Callers decide how to
// treat errors; both transports let the request through.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := tokenBucket.Run(ctx, l.client, []string{key},
		l.config.RequestsPerSecond,
		l.config.BurstCapacity,
		l.now().UnixMilli(),
		bucketTTLSeconds,
	).Int64Slice()
	if err != nil {
		return Decision{Allowed: true}, err
	}
	if len(res) != 2 {
		return Decision{Allowed: true}, fmt.Errorf("unexpected token bucket reply: %v", res)
	}
	return Decision{Allowed: res[0] == 1, Remaining: res[1]}, nil
}
