package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryStore is a bounded LRU of snapshots with a TTL, private to the process.
type MemoryStore struct {
	lru *expirable.LRU[string, *Snapshot]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding at most maxEntries snapshots for ttl.
// maxEntries <= 0 uses DefaultMaxEntries; ttl <= 0 disables expiry.
func NewMemoryStore(maxEntries int, ttl time.Duration) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	onEvict := func(_ string, _ *Snapshot) {
		CacheEvictions.WithLabelValues("memory").Inc()
	}
	return &MemoryStore{
		lru: expirable.NewLRU[string, *Snapshot](maxEntries, onEvict, ttl),
	}
}

func (m *MemoryStore) Get(_ context.Context, key Key) (*Snapshot, error) {
	snap, ok := m.lru.Get(key.String())
	if !ok {
		CacheMisses.WithLabelValues("memory").Inc()
		return nil, ErrCacheMiss
	}
	CacheHits.WithLabelValues("memory").Inc()
	return snap, nil
}

func (m *MemoryStore) Set(_ context.Context, key Key, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	m.lru.Add(key.String(), snap)
	CacheEntries.WithLabelValues("memory").Set(float64(m.lru.Len()))
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key Key) error {
	m.lru.Remove(key.String())
	CacheEntries.WithLabelValues("memory").Set(float64(m.lru.Len()))
	return nil
}

func (m *MemoryStore) Purge(_ context.Context) error {
	m.lru.Purge()
	CacheEntries.WithLabelValues("memory").Set(0)
	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryStore) Name() string {
	return "memory"
}

// Len returns the number of live snapshots.
func (m *MemoryStore) Len() int {
	return m.lru.Len()
}
