// Package cache provides a two-layer key/value store for upstream record
// sets: an in-process memory layer backed by a Redis layer with TTL.
//
// Caching is a performance optimization, not a correctness dependency.
// Callers treat any Store error as a cache miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrCacheMiss indicates the requested key was not found in any layer.
var ErrCacheMiss = errors.New("cache miss")

// Store is a two-layer cache: a short-lived in-process layer in front of
// Redis. The Redis client is optional; without it the Store degrades to
// memory-only operation.
type Store struct {
	memory    *gocache.Cache
	redis     *redis.Client
	memoryTTL time.Duration
	logger    zerolog.Logger
}

// NewStore creates a cache store. redisClient may be nil for memory-only
// operation. memoryTTL caps how long entries live in the in-process layer.
func NewStore(redisClient *redis.Client, memoryTTL time.Duration) *Store {
	if memoryTTL <= 0 {
		memoryTTL = 60 * time.Second
	}
	return &Store{
		memory:    gocache.New(memoryTTL, 2*memoryTTL),
		redis:     redisClient,
		memoryTTL: memoryTTL,
		logger:    log.With().Str("component", "cache").Logger(),
	}
}

// Get retrieves a cached record set by key. Returns ErrCacheMiss when the
// key is absent or expired in both layers. Expired entries are treated as
// absent, never returned.
func (s *Store) Get(ctx context.Context, key Key) ([]byte, error) {
	cacheKey := key.String()

	if raw, found := s.memory.Get(cacheKey); found {
		if data, ok := raw.([]byte); ok {
			CacheHits.WithLabelValues("memory").Inc()
			s.logger.Debug().Str("key", cacheKey).Str("layer", "memory").Msg("Cache hit")
			return data, nil
		}
	}

	if s.redis == nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	data, err := s.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			s.logger.Debug().Str("key", cacheKey).Msg("Cache miss")
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	// Backfill the memory layer so repeated reads inside the memory TTL
	// window skip Redis entirely.
	s.memory.Set(cacheKey, data, gocache.DefaultExpiration)

	CacheHits.WithLabelValues("redis").Inc()
	s.logger.Debug().Str("key", cacheKey).Str("layer", "redis").Msg("Cache hit")

	return data, nil
}

// Set stores a record set in both layers with the given TTL. Entries with
// a non-positive TTL are not cached. The memory layer TTL is capped at the
// configured memoryTTL so the in-process copy never outlives Redis.
func (s *Store) Set(ctx context.Context, key Key, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	cacheKey := key.String()

	memTTL := ttl
	if memTTL > s.memoryTTL {
		memTTL = s.memoryTTL
	}
	s.memory.Set(cacheKey, data, memTTL)
	CacheWriteBytes.WithLabelValues("memory").Add(float64(len(data)))

	if s.redis == nil {
		return nil
	}

	if err := s.redis.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	CacheWriteBytes.WithLabelValues("redis").Add(float64(len(data)))

	s.logger.Debug().Str("key", cacheKey).Dur("ttl", ttl).Msg("Cached record set")

	return nil
}

// Delete removes a cache entry from both layers.
func (s *Store) Delete(ctx context.Context, key Key) error {
	cacheKey := key.String()

	s.memory.Delete(cacheKey)

	if s.redis == nil {
		return nil
	}

	if err := s.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}
