package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

const (
	// DefaultTTL is how long a snapshot is served before it is rebuilt.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxEntries bounds the in-memory store.
	DefaultMaxEntries = 256
)

// Store keeps snapshots by key.
type Store interface {
	// Get returns ErrCacheMiss when the key is absent or expired.
	Get(ctx context.Context, key Key) (*Snapshot, error)
	Set(ctx context.Context, key Key, snap *Snapshot) error
	Delete(ctx context.Context, key Key) error
	// Purge drops every snapshot.
	Purge(ctx context.Context) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	// Name labels metrics and logs.
	Name() string
}
