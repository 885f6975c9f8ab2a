// Package ratelimit gates outbound requests against per-source budgets so
// the client stays inside the request allowances published by the DVF and
// ADEME platforms. The window state lives in Redis and is shared across
// client instances; when Redis is unreachable the limiter fails open to an
// in-process token bucket with the same budget.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Redis key prefix for rate limit windows.
const redisKeyPrefix = "ecoimmo:rate"

// windowSize is the fixed accounting window.
const windowSize = time.Minute

// Prometheus metrics for rate limit gating.
var (
	rateLimitBlocksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecoimmo_rate_limit_blocks_total",
		Help: "Total number of requests blocked by the per-source budget",
	}, []string{"source"})

	rateLimitFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ecoimmo_rate_limit_fallbacks_total",
		Help: "Total number of times the limiter fell back to local state",
	})
)

// Limiter enforces per-source request budgets.
type Limiter struct {
	redis   *redis.Client
	budgets map[string]int

	mu    sync.Mutex
	local map[string]*rate.Limiter

	logger zerolog.Logger
}

// NewLimiter creates a limiter with per-source requests-per-minute budgets.
// redisClient may be nil; the limiter then runs purely in-process.
func NewLimiter(redisClient *redis.Client, budgets map[string]int) *Limiter {
	return &Limiter{
		redis:   redisClient,
		budgets: budgets,
		local:   make(map[string]*rate.Limiter),
		logger:  log.With().Str("component", "ratelimit").Logger(),
	}
}

// Allow reports whether a request for the given source fits the budget.
// Sources without a configured budget are always allowed. Redis errors
// never block a request: accounting degrades to the local token bucket.
func (l *Limiter) Allow(ctx context.Context, source string) bool {
	budget, ok := l.budgets[source]
	if !ok || budget <= 0 {
		return true
	}

	if l.redis != nil {
		if allowed, err := l.allowRedis(ctx, source, budget); err == nil {
			if !allowed {
				rateLimitBlocksTotal.WithLabelValues(source).Inc()
				l.logger.Warn().
					Str("source", source).
					Int("budget", budget).
					Msg("Request blocked by rate limit budget")
			}
			return allowed
		} else {
			rateLimitFallbacksTotal.Inc()
			l.logger.Warn().Err(err).Str("source", source).Msg("Rate limit state unavailable, using local bucket")
		}
	}

	if l.localBucket(source, budget).Allow() {
		return true
	}

	rateLimitBlocksTotal.WithLabelValues(source).Inc()
	l.logger.Warn().
		Str("source", source).
		Int("budget", budget).
		Msg("Request blocked by local rate limit bucket")
	return false
}

// allowRedis counts the request in the current fixed window.
func (l *Limiter) allowRedis(ctx context.Context, source string, budget int) (bool, error) {
	window := time.Now().Unix() / int64(windowSize.Seconds())
	key := fmt.Sprintf("%s:%s:%d", redisKeyPrefix, source, window)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr window counter: %w", err)
	}

	// First hit in the window owns the expiry. Two windows of slack keeps
	// clock skew between instances harmless.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, 2*windowSize).Err(); err != nil {
			l.logger.Warn().Err(err).Str("source", source).Msg("Failed to set window expiry")
		}
	}

	return count <= int64(budget), nil
}

// localBucket returns the in-process token bucket for a source, sized so a
// full budget can be spent immediately and refills over the window.
func (l *Limiter) localBucket(source string, budget int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if bucket, ok := l.local[source]; ok {
		return bucket
	}

	bucket := rate.NewLimiter(rate.Limit(float64(budget)/windowSize.Seconds()), budget)
	l.local[source] = bucket
	return bucket
}
