package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// StateStore persists the cooldown state.
type StateStore interface {
	Load(ctx context.Context) (*CooldownState, error)
	Save(ctx context.Context, state *CooldownState) error
}

// MemoryStore keeps the cooldown in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	state CooldownState
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (*CooldownState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state := m.state
	return &state, nil
}

func (m *MemoryStore) Save(_ context.Context, state *CooldownState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Never shorten a cooldown another request already extended
	if state.Until.After(m.state.Until) {
		m.state.Until = state.Until
	}
	m.state.LastThrottle = state.LastThrottle
	return nil
}

// RedisStore shares the cooldown across replicas.
type RedisStore struct {
	redis *redis.Client
}

// NewRedisStore creates a Redis backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient}
}

// Load returns a zero state when nothing is stored.
func (r *RedisStore) Load(ctx context.Context) (*CooldownState, error) {
	state := &CooldownState{}

	until, err := r.redis.Get(ctx, RedisKeyCooldownUntil).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get cooldown until: %w", err)
	}
	if err == nil {
		state.Until = time.UnixMilli(until)
	}

	last, err := r.redis.Get(ctx, RedisKeyLastThrottle).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last throttle: %w", err)
	}
	if err == nil {
		state.LastThrottle = time.UnixMilli(last)
	}

	return state, nil
}

// saveScript raises cooldown_until only when the new instant is later, so
// concurrent replicas never shorten each other's cooldown.
// KEYS: cooldown_until, last_throttle. ARGV: until ms, ttl ms, last ms, last ttl ms.
var saveScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) > current then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
end
redis.call('SET', KEYS[2], ARGV[3], 'PX', ARGV[4])
return 1
`)

// Save stores the state; the cooldown key expires with the cooldown itself
// and is never moved to an earlier instant.
func (r *RedisStore) Save(ctx context.Context, state *CooldownState) error {
	var until, ttl int64
	if remaining := state.Remaining().Milliseconds(); remaining > 0 {
		until, ttl = state.Until.UnixMilli(), remaining
	}

	err := saveScript.Run(ctx, r.redis,
		[]string{RedisKeyCooldownUntil, RedisKeyLastThrottle},
		until, max(ttl, 1), state.LastThrottle.UnixMilli(), (24 * time.Hour).Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("store cooldown state in redis: %w", err)
	}
	return nil
}
