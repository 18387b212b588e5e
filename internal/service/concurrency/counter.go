package concurrency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	redisinfra "github.com/acme/campaign-dispatch/internal/infra/redis"
)

var incrScript = redis.NewScript(`
local key = KEYS[1]
local ttl = tonumber(ARGV[1])
local current = redis.call('INCR', key)
if ttl > 0 then
  redis.call('PEXPIRE', key, ttl)
end
return current
`)

var decrScript = redis.NewScript(`
local key = KEYS[1]
local current = tonumber(redis.call('GET', key) or '0')
if current <= 1 then
  redis.call('DEL', key)
  return 0
end
return redis.call('DECR', key)
`)

// CounterEstimator tracks in-flight calls per organization in a Redis counter
// fed by call lifecycle events. The TTL bounds the damage of lost "ended" events.
type CounterEstimator struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewCounterEstimator constructs the estimator.
func NewCounterEstimator(client *redis.Client, prefix string, ttl time.Duration) *CounterEstimator {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CounterEstimator{client: client, prefix: prefix, ttl: ttl}
}

// ActiveCalls implements ActiveCallEstimator.
func (c *CounterEstimator) ActiveCalls(ctx context.Context, orgID uuid.UUID) (int, error) {
	raw, err := c.client.Get(ctx, c.key(orgID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter estimator: get: %w", err)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("counter estimator: parse %q: %w", raw, err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// Started records a call start and refreshes the counter TTL.
func (c *CounterEstimator) Started(ctx context.Context, orgID uuid.UUID) (int, error) {
	n, err := incrScript.Run(ctx, c.client, []string{c.key(orgID)}, c.ttl.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("counter estimator: incr: %w", err)
	}
	return n, nil
}

// Ended records a call end. The counter never drops below zero.
func (c *CounterEstimator) Ended(ctx context.Context, orgID uuid.UUID) (int, error) {
	n, err := decrScript.Run(ctx, c.client, []string{c.key(orgID)}).Int()
	if err != nil {
		return 0, fmt.Errorf("counter estimator: decr: %w", err)
	}
	return n, nil
}

func (c *CounterEstimator) key(orgID uuid.UUID) string {
	return CounterKey(c.prefix, orgID)
}

// CounterKey is the Redis key holding the in-flight count of an organization.
func CounterKey(prefix string, orgID uuid.UUID) string {
	return redisinfra.Key(prefix, "org", orgID.String(), "active")
}
