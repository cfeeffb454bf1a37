package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces snapshot keys in Redis.
const KeyPrefix = "loyverse:snapshot:"

// RedisStore keeps snapshots in Redis so replicas share accumulations.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis backed store. ttl <= 0 uses DefaultTTL.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		redis: redisClient,
		ttl:   ttl,
	}
}

// Get retrieves a snapshot by key.
// Returns ErrCacheMiss if the key doesn't exist or has expired.
func (r *RedisStore) Get(ctx context.Context, key Key) (*Snapshot, error) {
	data, err := r.redis.Get(ctx, KeyPrefix+key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues("redis").Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	CacheHits.WithLabelValues("redis").Inc()
	return &snap, nil
}

// Set stores a snapshot; Redis removes it after the store TTL.
func (r *RedisStore) Set(ctx context.Context, key Key, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := r.redis.Set(ctx, KeyPrefix+key.String(), data, r.ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues("redis").Set(float64(len(data)))
	return nil
}

// Delete removes a snapshot.
func (r *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := r.redis.Del(ctx, KeyPrefix+key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Purge removes every snapshot key. Other keys in the database are untouched.
func (r *RedisStore) Purge(ctx context.Context) error {
	iter := r.redis.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()

	batch := make([]string, 0, 100)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := r.redis.Del(ctx, batch...).Err(); err != nil {
			CacheErrors.WithLabelValues("purge").Inc()
			return fmt.Errorf("redis del: %w", err)
		}
		CacheEvictions.WithLabelValues("redis").Add(float64(len(batch)))
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("purge").Inc()
		return fmt.Errorf("redis scan: %w", err)
	}
	return flush()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}

func (r *RedisStore) Name() string {
	return "redis"
}
