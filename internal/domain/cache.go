package domain

import (
	"context"
	"time"
)

// Cache is the shared second tier behind collection snapshots.
// Supports two-phase caching: local LRU + Redis.
// All methods require a scope so workspaces never see each other's entries.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, scope string, key string) ([]byte, error)

	// Set stores a value in cache. A ttl <= 0 means no expiry.
	Set(ctx context.Context, scope string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, scope string, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the shared tier: "memory", "redis" or "none"
	Type string

	// CacheDuration is the freshness window of a collection snapshot.
	CacheDuration time.Duration

	// Local LRU settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
