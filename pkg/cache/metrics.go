package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, redis).
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoimmo_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks cache misses across both layers.
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ecoimmo_cache_misses_total",
			Help: "Total number of cache misses",
		},
	)

	// CacheErrors tracks cache operation errors.
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoimmo_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)

	// CacheWriteBytes tracks the volume of data written to the cache.
	CacheWriteBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecoimmo_cache_write_bytes_total",
			Help: "Total bytes written to the cache by layer",
		},
		[]string{"layer"},
	)
)
