package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupStore decides whether a case+channel+level delivery is the first of
// its kind. Retried deliveries that already reached a human are suppressed
// so staff never see duplicate alerts for one escalation step.
type DedupStore interface {
	// FirstDelivery returns true exactly once per key.
	FirstDelivery(ctx context.Context, key string) (bool, error)
}

// DedupKey builds the idempotency key for one delivery.
func DedupKey(caseID, channel, level string) string {
	return fmt.Sprintf("notify:case:%s:chan:%s:level:%s", caseID, channel, level)
}

// MemoryDedup is the in-process DedupStore.
type MemoryDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewMemoryDedup creates an empty MemoryDedup.
func NewMemoryDedup() *MemoryDedup {
	return &MemoryDedup{seen: make(map[string]bool)}
}

func (d *MemoryDedup) FirstDelivery(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

// RedisDedup is the shared DedupStore for multi-replica deployments. SETNX
// makes the first-delivery decision atomic across processes.
type RedisDedup struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDedup creates a RedisDedup. Keys expire after ttl; a duplicate
// arriving later than that would re-alert, which is acceptable for
// long-separated escalation steps.
func NewRedisDedup(client *redis.Client, ttl time.Duration) *RedisDedup {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDedup{client: client, ttl: ttl}
}

func (d *RedisDedup) FirstDelivery(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, key, "1", d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return ok, nil
}
