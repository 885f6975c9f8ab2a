package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecoimmo_upstream_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ecoimmo_upstream_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecoimmo_upstream_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// DefaultBackoffSchedule is the delay inserted before each retry attempt.
// Three attempts total, waiting 1s then 3s then (if a fourth attempt were
// configured) 9s. The schedule is data-provider friendly: both DVF and
// ADEME throttle aggressive clients.
func DefaultBackoffSchedule() []time.Duration {
	return []time.Duration{1 * time.Second, 3 * time.Second, 9 * time.Second}
}

// backoffFor returns the delay before retry number attempt (1-based).
// When the schedule is shorter than the attempt count the last entry repeats.
func backoffFor(schedule []time.Duration, attempt int) time.Duration {
	if len(schedule) == 0 {
		return time.Second
	}
	if attempt > len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[attempt-1]
}

// retryWithBackoff executes fn up to maxAttempts times, sleeping according
// to the backoff schedule between attempts. Only the calling goroutine is
// suspended. classify maps the last error to an ErrorClass that decides
// whether another attempt is worthwhile.
func (c *Client) retryWithBackoff(ctx context.Context, fn func() error, classify func(error) ErrorClass) error {
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				c.logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err
		class := classify(err)

		if !shouldRetry(class) {
			return lastErr
		}

		if attempt >= c.config.MaxAttempts {
			break
		}

		backoff := backoffFor(c.config.BackoffSchedule, attempt)
		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(backoff.Seconds())

		c.logger.Warn().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Int("max_attempts", c.config.MaxAttempts).
			Dur("backoff", backoff).
			Err(err).
			Msg("Retrying request after backoff")

		select {
		case <-ctx.Done():
			c.logger.Warn().
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(backoff):
		}
	}

	class := classify(lastErr)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	c.logger.Error().
		Str("error_class", string(class)).
		Int("max_attempts", c.config.MaxAttempts).
		Err(lastErr).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, c.config.MaxAttempts, lastErr)
}
