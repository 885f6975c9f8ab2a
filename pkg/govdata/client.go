// Package govdata fetches and normalizes records from the two French
// open-data providers: DVF property transactions and ADEME DPE energy
// diagnostics. Fetches are cached, rate limited, and GDPR anonymized;
// upstream failures degrade to empty result sets because partial data is
// always preferable to a crashed request in this read-heavy system.
package govdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/ecoimmo/fr-gouv-data-client/pkg/cache"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/fetch"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/ratelimit"
)

// errRateLimited marks a fetch skipped because the source budget is spent.
var errRateLimited = errors.New("rate limit budget exhausted")

// Config holds the dataset client configuration.
type Config struct {
	// Provider endpoints.
	DVFBaseURL   string
	ADEMEBaseURL string

	// Cache freshness per dataset. DVF data is updated monthly, DPE data
	// weekly, hence the asymmetric defaults.
	DVFCacheTTL time.Duration
	DPECacheTTL time.Duration

	// DefaultLimit applies when a filter carries no record budget.
	DefaultLimit int

	// PageSize is the per-request record count against the providers.
	PageSize int

	// MaxPageWorkers bounds parallel page fetches for large limits.
	MaxPageWorkers int

	// Anonymization is applied to transaction records exactly once,
	// before they are returned.
	Anonymization AnonymizationPolicy

	// SingleFlight coalesces concurrent identical fetches. Off by
	// default: redundant cache population is harmless (last write wins)
	// and coalescing couples unrelated request lifetimes.
	SingleFlight bool
}

// DefaultConfig returns the production defaults for the 2026 endpoints.
func DefaultConfig() Config {
	return Config{
		DVFBaseURL:     "https://data.economie.gouv.fr/api/v2/catalog/datasets/dvf/records",
		ADEMEBaseURL:   "https://data.ademe.fr/data-fair/api/v1/datasets/dpe-v2-logements-existants/lines",
		DVFCacheTTL:    24 * time.Hour,
		DPECacheTTL:    12 * time.Hour,
		DefaultLimit:   100,
		PageSize:       100,
		MaxPageWorkers: 4,
		Anonymization:  DefaultAnonymizationPolicy(),
		SingleFlight:   false,
	}
}

// Client fetches typed entities from both datasets.
type Client struct {
	fetcher *fetch.Client
	store   *cache.Store
	limiter *ratelimit.Limiter
	config  Config
	group   singleflight.Group
	logger  zerolog.Logger
}

// NewClient creates a dataset client. limiter may be nil to disable
// request gating.
func NewClient(cfg Config, fetcher *fetch.Client, store *cache.Store, limiter *ratelimit.Limiter) (*Client, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("fetch client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 100
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.MaxPageWorkers <= 0 {
		cfg.MaxPageWorkers = 4
	}

	return &Client{
		fetcher: fetcher,
		store:   store,
		limiter: limiter,
		config:  cfg,
		logger:  log.With().Str("component", "govdata").Logger(),
	}, nil
}

func (c *Client) transactionsDataset() dataset {
	return dataset{
		name:          SourceTransactions,
		baseURL:       c.config.DVFBaseURL,
		envelopeField: "records",
		ttl:           c.config.DVFCacheTTL,
		pageSize:      c.config.PageSize,
		pageParams:    dvfPageParams,
	}
}

func (c *Client) diagnosticsDataset() dataset {
	return dataset{
		name:          SourceDiagnostics,
		baseURL:       c.config.ADEMEBaseURL,
		envelopeField: "results",
		ttl:           c.config.DPECacheTTL,
		pageSize:      c.config.PageSize,
		pageParams:    ademePageParams,
	}
}

// FetchTransactions returns DVF transactions matching the filters, GDPR
// anonymized. An empty slice (never an error) is returned when the
// upstream source is ultimately unavailable.
func (c *Client) FetchTransactions(ctx context.Context, filters TransactionFilters) ([]Transaction, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = c.config.DefaultLimit
	}

	records := c.fetchPaged(ctx, c.transactionsDataset(), filters.queryParams(), limit)

	transactions := make([]Transaction, 0, len(records))
	for _, raw := range records {
		txn, err := parseTransaction(raw)
		if err != nil {
			c.logger.Warn().Err(err).Str("dataset", SourceTransactions).Msg("Record dropped during parsing")
			continue
		}
		transactions = append(transactions, c.config.Anonymization.Apply(txn))
	}

	c.logger.Info().
		Str("dataset", SourceTransactions).
		Str("code_postal", filters.PostalCode).
		Int("records", len(transactions)).
		Msg("Fetched transactions")

	return transactions, nil
}

// FetchDiagnostics returns ADEME DPE diagnostics matching the filters.
// An empty slice (never an error) is returned when the upstream source is
// ultimately unavailable.
func (c *Client) FetchDiagnostics(ctx context.Context, filters DiagnosticFilters) ([]Diagnostic, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = c.config.DefaultLimit
	}

	records := c.fetchPaged(ctx, c.diagnosticsDataset(), filters.queryParams(), limit)

	diagnostics := make([]Diagnostic, 0, len(records))
	for _, raw := range records {
		dpe, err := parseDiagnostic(raw)
		if err != nil {
			c.logger.Warn().Err(err).Str("dataset", SourceDiagnostics).Msg("Record dropped during parsing")
			continue
		}
		diagnostics = append(diagnostics, dpe)
	}

	c.logger.Info().
		Str("dataset", SourceDiagnostics).
		Str("code_postal", filters.PostalCode).
		Int("records", len(diagnostics)).
		Msg("Fetched diagnostics")

	return diagnostics, nil
}

// fetchRecords performs one upstream page fetch with cache-aside and rate
// gating. The raw record list is cached before any parsing so a later
// schema change never invalidates stored entries.
func (c *Client) fetchRecords(ctx context.Context, ds dataset, params url.Values) ([]json.RawMessage, error) {
	key := cache.Key{Source: ds.name, Params: params}

	data, err := c.store.Get(ctx, key)
	if err == nil {
		var records []json.RawMessage
		if unmarshalErr := json.Unmarshal(data, &records); unmarshalErr == nil {
			return records, nil
		}
		// Corrupt entry: fall through to a fresh fetch.
		c.logger.Warn().Str("dataset", ds.name).Msg("Discarding unreadable cache entry")
		_ = c.store.Delete(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		// Cache backend trouble is never fatal; degrade to a miss.
		c.logger.Warn().Err(err).Str("dataset", ds.name).Msg("Cache read failed, treating as miss")
	}

	if c.limiter != nil && !c.limiter.Allow(ctx, ds.name) {
		return nil, errRateLimited
	}

	records, err := c.doFetch(ctx, ds, key, params)
	if err != nil {
		return nil, err
	}

	if serialized, marshalErr := json.Marshal(records); marshalErr == nil {
		if setErr := c.store.Set(ctx, key, serialized, ds.ttl); setErr != nil {
			c.logger.Warn().Err(setErr).Str("dataset", ds.name).Msg("Cache write failed")
		}
	}

	return records, nil
}

// doFetch executes the upstream call, optionally coalescing concurrent
// identical requests through a single flight.
func (c *Client) doFetch(ctx context.Context, ds dataset, key cache.Key, params url.Values) ([]json.RawMessage, error) {
	if !c.config.SingleFlight {
		return c.fetcher.GetJSON(ctx, ds.baseURL, params, ds.envelopeField)
	}

	result, err, shared := c.group.Do(key.String(), func() (any, error) {
		return c.fetcher.GetJSON(ctx, ds.baseURL, params, ds.envelopeField)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug().Str("dataset", ds.name).Msg("Coalesced duplicate in-flight fetch")
	}

	records, ok := result.([]json.RawMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected single-flight result type %T", result)
	}
	return records, nil
}
