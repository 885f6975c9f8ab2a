// Package fetch provides a resilient HTTP client for the French open-data
// providers (DVF and ADEME), with retry, backoff, and error classification.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecoimmo_upstream_requests_total",
		Help: "Total upstream requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ecoimmo_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecoimmo_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// User-Agent header sent on every request. The French open-data
	// platforms ask API consumers to identify themselves.
	UserAgent string

	// MaxAttempts is the total number of attempts per request
	// (the initial request plus retries).
	MaxAttempts int

	// BackoffSchedule holds the delay before each retry attempt.
	BackoffSchedule []time.Duration

	// Timeout applies to each individual HTTP attempt.
	Timeout time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:       userAgent,
		MaxAttempts:     3,
		BackoffSchedule: DefaultBackoffSchedule(),
		Timeout:         30 * time.Second,
	}
}

// Client issues JSON requests against upstream record-listing endpoints.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new fetch client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1 (got %d)", cfg.MaxAttempts)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.BackoffSchedule) == 0 {
		cfg.BackoffSchedule = DefaultBackoffSchedule()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: log.With().Str("component", "fetch-client").Logger(),
	}, nil
}

// GetJSON performs a GET against baseURL with the given query parameters,
// retrying transient failures, and extracts the named envelope field as a
// list of raw records.
//
// Error semantics follow the upstream taxonomy: network and 5xx failures
// are retried against the backoff schedule and surface as *Error wrapping
// ErrRetryExhausted once the attempt budget is spent; 4xx responses and
// malformed envelopes are terminal on the first occurrence.
func (c *Client) GetJSON(ctx context.Context, baseURL string, params url.Values, envelopeField string) ([]json.RawMessage, error) {
	reqURL := baseURL
	if encoded := params.Encode(); encoded != "" {
		reqURL = baseURL + "?" + encoded
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	endpoint := parsed.Path

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	var body []byte
	var lastErr error

	retryErr := c.retryWithBackoff(ctx, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if reqErr != nil {
			lastErr = &Error{Class: ErrorClassClient, Message: reqErr.Error(), Err: reqErr}
			return lastErr
		}
		req.Header.Set("User-Agent", c.config.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, reqErr := c.httpClient.Do(req)
		if reqErr != nil {
			c.logger.Warn().Err(reqErr).Str("endpoint", endpoint).Msg("HTTP request failed")
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
			lastErr = &Error{Class: ErrorClassNetwork, Message: "transport failure", Err: reqErr}
			return lastErr
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			class := classifyStatus(resp.StatusCode)
			errorsTotal.WithLabelValues(string(class)).Inc()
			requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()

			c.logger.Warn().
				Str("endpoint", endpoint).
				Int("status_code", resp.StatusCode).
				Str("error_class", string(class)).
				Msg("Upstream request error")

			lastErr = &Error{
				StatusCode: resp.StatusCode,
				Class:      class,
				Message:    resp.Status,
			}
			return lastErr
		}

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			lastErr = &Error{Class: ErrorClassNetwork, Message: "read response body", Err: readErr}
			return lastErr
		}

		body = data
		requestsTotal.WithLabelValues(endpoint, fmt.Sprintf("%d", resp.StatusCode)).Inc()
		return nil
	}, func(err error) ErrorClass {
		return classOf(err)
	})

	if retryErr != nil {
		return nil, wrapTerminal(retryErr, lastErr)
	}

	records, err := extractEnvelope(body, envelopeField)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassEnvelope)).Inc()
		c.logger.Error().
			Str("endpoint", endpoint).
			Str("envelope_field", envelopeField).
			Err(err).
			Msg("Malformed response envelope")
		return nil, err
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("records", len(records)).
		Dur("duration", time.Since(startTime)).
		Msg("Upstream fetch complete")

	return records, nil
}

// extractEnvelope parses the response body as an envelope object and
// returns the raw record list stored under field.
func extractEnvelope(body []byte, field string) ([]json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &Error{Class: ErrorClassEnvelope, Message: "response is not a JSON object", Err: ErrMalformedEnvelope}
	}

	raw, ok := envelope[field]
	if !ok {
		return nil, &Error{
			Class:   ErrorClassEnvelope,
			Message: fmt.Sprintf("missing envelope field %q", field),
			Err:     ErrMalformedEnvelope,
		}
	}

	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, &Error{
			Class:   ErrorClassEnvelope,
			Message: fmt.Sprintf("envelope field %q is not a list", field),
			Err:     ErrMalformedEnvelope,
		}
	}

	return records, nil
}

// classifyStatus categorizes a non-2xx HTTP status for retry decisions.
func classifyStatus(status int) ErrorClass {
	switch {
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassNetwork
	}
}

// classOf extracts the ErrorClass from a fetch error, defaulting to network.
func classOf(err error) ErrorClass {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}
	return ErrorClassNetwork
}

// wrapTerminal prefers the typed last error when retry gave up so callers
// can inspect status code and class via errors.As.
func wrapTerminal(retryErr, lastErr error) error {
	var fe *Error
	if errors.As(retryErr, &fe) {
		return retryErr
	}
	if errors.As(lastErr, &fe) {
		return &Error{
			StatusCode: fe.StatusCode,
			Class:      fe.Class,
			Message:    fe.Message,
			Err:        retryErr,
		}
	}
	return retryErr
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
