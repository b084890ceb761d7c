package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CooldownStore deduplicates rule triggers: TryAcquire returns true the
// first time key is seen within ttl, then false until ttl elapses.
//
// Grounded on control_plane/idempotency/store.go's Backend interface
// (Set/Get against a pluggable backend with an in-memory fallback),
// repurposed here from HTTP POST idempotency to alerting rule cooldown
// dedup — the concept (a TTL'd "have I already done this" check) is the
// same, only the key space and payload differ.
type CooldownStore interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MemoryCooldownStore is the in-process fallback, used when no Redis
// client is configured.
type MemoryCooldownStore struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

// NewMemoryCooldownStore constructs an empty in-memory store.
func NewMemoryCooldownStore() *MemoryCooldownStore {
	return &MemoryCooldownStore{seen: map[string]time.Time{}}
}

// TryAcquire reports true (and records now) if key was not seen within
// the last ttl.
func (m *MemoryCooldownStore) TryAcquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.seen[key]; ok && time.Since(last) < ttl {
		return false, nil
	}
	m.seen[key] = time.Now()
	return true, nil
}

// RedisCooldownStore backs TryAcquire with a Redis SETNX-with-TTL,
// shared across rigwatch instances so a cooldown survives a restart and
// is consistent across replicas.
type RedisCooldownStore struct {
	client *redis.Client
}

// NewRedisCooldownStore wraps an existing go-redis client.
func NewRedisCooldownStore(client *redis.Client) *RedisCooldownStore {
	return &RedisCooldownStore{client: client}
}

// TryAcquire sets "alerting:cooldown:<key>" with NX semantics and a TTL
// of ttl; success means the cooldown was not already active.
func (r *RedisCooldownStore) TryAcquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, "alerting:cooldown:"+key, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}
