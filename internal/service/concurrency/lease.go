package concurrency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	redisinfra "github.com/acme/campaign-dispatch/internal/infra/redis"
)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// Lease is an advisory hold on an organization for the duration of a tick.
type Lease struct {
	OrgID uuid.UUID
	key   string
	token string
}

// LeaseManager hands out per-organization tick leases backed by Redis.
type LeaseManager struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewLeaseManager constructs a manager. A non-positive ttl defaults to 5 minutes.
func NewLeaseManager(client *redis.Client, prefix string, ttl time.Duration) *LeaseManager {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &LeaseManager{client: client, prefix: prefix, ttl: ttl}
}

// TTL is the lifetime granted by Acquire and Renew.
func (m *LeaseManager) TTL() time.Duration { return m.ttl }

// Acquire takes the organization lease. ok is false when another holder owns it.
func (m *LeaseManager) Acquire(ctx context.Context, orgID uuid.UUID) (*Lease, bool, error) {
	lease := &Lease{OrgID: orgID, key: LeaseKey(m.prefix, orgID), token: uuid.NewString()}
	ok, err := m.client.SetNX(ctx, lease.key, lease.token, m.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lease: acquire org %s: %w", orgID, err)
	}
	if !ok {
		return nil, false, nil
	}
	return lease, true, nil
}

// Renew extends a held lease. It reports false if the lease was lost.
func (m *LeaseManager) Renew(ctx context.Context, lease *Lease) (bool, error) {
	n, err := renewScript.Run(ctx, m.client, []string{lease.key}, lease.token, m.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("lease: renew org %s: %w", lease.OrgID, err)
	}
	return n == 1, nil
}

// Release drops the lease if it is still owned by this holder.
func (m *LeaseManager) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}
	if _, err := releaseScript.Run(ctx, m.client, []string{lease.key}, lease.token).Int(); err != nil {
		return fmt.Errorf("lease: release org %s: %w", lease.OrgID, err)
	}
	return nil
}

// LeaseKey is the Redis key guarding an organization's tick.
func LeaseKey(prefix string, orgID uuid.UUID) string {
	return redisinfra.Key(prefix, "org", orgID.String(), "tick")
}
