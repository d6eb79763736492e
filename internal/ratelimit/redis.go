package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/config"
)

const slidingWindowScript = `
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - window)
local count = redis.call("ZCARD", KEYS[1])

local allowed = 0
if count < limit then
  redis.call("ZADD", KEYS[1], now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call("PEXPIRE", KEYS[1], window)

local oldest = now
local first = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
if first[2] ~= nil then
  oldest = tonumber(first[2])
end

-- Return: allowed, count, oldest (milliseconds)
return {allowed, count, oldest}
`

// RedisWindow shares the sliding window across instances through a sorted set.
type RedisWindow struct {
	client *redis.Client
	clock  clock.Clock
	script *redis.Script
}

func NewRedisWindow(client *redis.Client, c clock.Clock) (*RedisWindow, error) {
	if client == nil {
		return nil, errors.New("rate limiter redis client is not configured")
	}
	return &RedisWindow{
		client: client,
		clock:  c,
		script: redis.NewScript(slidingWindowScript),
	}, nil
}

func (r *RedisWindow) Allow(ctx context.Context, key string, policy config.RateLimitPolicy) (*Result, error) {
	if err := validate(key, policy); err != nil {
		return &Result{Allowed: false}, err
	}

	now := r.clock.Now()
	res, err := r.script.Run(
		ctx,
		r.client,
		[]string{key},
		now.UnixMilli(),
		policy.Window.Milliseconds(),
		policy.MaxRequests,
		ulid.Make().String(),
	).Int64Slice()
	if err != nil {
		return &Result{Allowed: false}, err
	}
	if len(res) < 3 {
		return &Result{Allowed: false}, errors.New("invalid rate limit script response")
	}

	allowed := res[0] == 1
	count := int(res[1])
	reset := time.UnixMilli(res[2]).Add(policy.Window)

	out := &Result{
		Allowed:   allowed,
		Limit:     policy.MaxRequests,
		Remaining: max(policy.MaxRequests-count, 0),
		ResetTime: reset,
	}
	if !allowed {
		out.RetryAfter = max(reset.Sub(now), 0)
	}
	return out, nil
}
