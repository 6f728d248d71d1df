package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/modelrelay/modelrelay/internal/models"
)

// RedisBackend implements the sliding windows on Redis sorted sets, scored
// by request time, so limits hold across gateway instances. Every error is
// surfaced to the caller for fallback handling.
type RedisBackend struct {
	client    *redis.Client
	perMinute int
	perHour   int
}

func NewRedisBackend(cfg models.RateLimitConfig) (*RedisBackend, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return &RedisBackend{
		client:    redis.NewClient(opt),
		perMinute: cfg.PerMinute,
		perHour:   cfg.PerHour,
	}, nil
}

// admitScript prunes both windows, counts what is left, and inserts the new
// request only when both limits have room. A limit of 0 disables that window.
// Running it as one script keeps concurrent gateway instances from admitting
// past the limit between the count and the insert.
var admitScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, ARGV[2])
redis.call('ZREMRANGEBYSCORE', KEYS[2], 0, ARGV[3])
local minute = redis.call('ZCARD', KEYS[1])
local hour = redis.call('ZCARD', KEYS[2])
local perMinute = tonumber(ARGV[4])
local perHour = tonumber(ARGV[5])
if (perMinute > 0 and minute >= perMinute) or (perHour > 0 and hour >= perHour) then
	return {0, minute, hour}
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[6])
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[6])
redis.call('EXPIRE', KEYS[1], ARGV[7])
redis.call('EXPIRE', KEYS[2], ARGV[8])
return {1, minute + 1, hour + 1}
`)

func (b *RedisBackend) Admit(ctx context.Context, clientID string, now time.Time) (Decision, error) {
	keys := []string{
		"ratelimit:" + clientID + ":minute",
		"ratelimit:" + clientID + ":hour",
	}
	res, err := admitScript.Run(ctx, b.client, keys,
		now.UnixNano(),
		strconv.FormatInt(now.Add(-time.Minute).UnixNano(), 10),
		strconv.FormatInt(now.Add(-time.Hour).UnixNano(), 10),
		b.perMinute,
		b.perHour,
		uuid.NewString(),
		int((2*time.Minute).Seconds()),
		int((2*time.Hour).Seconds()),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit window check: %w", err)
	}
	return b.decisionFromScript(res)
}

func (b *RedisBackend) decisionFromScript(res interface{}) (Decision, error) {
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	allowed, okA := vals[0].(int64)
	usedMinute, okM := vals[1].(int64)
	usedHour, okH := vals[2].(int64)
	if !okA || !okM || !okH {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}
	return Decision{
		Allowed:         allowed == 1,
		LimitMinute:     b.perMinute,
		LimitHour:       b.perHour,
		RemainingMinute: remaining(b.perMinute, int(usedMinute)),
		RemainingHour:   remaining(b.perHour, int(usedHour)),
	}, nil
}

// Ping verifies Redis connectivity.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection pool.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
