// Package crossref joins property transactions with energy diagnostics.
//
// The two upstream datasets share no identifier, so records are matched
// approximately: by postal code and a 10 m² surface bucket that absorbs
// measurement noise between the two independent surveys. Matches are
// best-effort and never carry more than medium confidence.
package crossref

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ecoimmo/fr-gouv-data-client/pkg/govdata"
)

var (
	crossrefMatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ecoimmo_crossref_matches_total",
		Help: "Reconciled records by match confidence",
	}, []string{"confidence"})

	crossrefDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ecoimmo_crossref_duration_seconds",
		Help:    "Duration of full reconciliation runs",
		Buckets: prometheus.DefBuckets,
	})
)

// Confidence grades how a transaction was matched to a diagnostic.
type Confidence string

const (
	// ConfidenceMedium marks a surface-bucket match. The join is
	// approximate, so this is the best grade the reconciler ever assigns.
	ConfidenceMedium Confidence = "medium"
	// ConfidenceNone marks a transaction with no usable match.
	ConfidenceNone Confidence = "none"
)

// EnrichedRecord pairs a transaction with its best-matching diagnostic,
// if any was found.
type EnrichedRecord struct {
	Transaction govdata.Transaction `json:"transaction"`
	Diagnostic  *govdata.Diagnostic `json:"diagnostic,omitempty"`
	Confidence  Confidence          `json:"confidence"`
}

// DataSource provides the two datasets the reconciler joins.
type DataSource interface {
	FetchTransactions(ctx context.Context, filters govdata.TransactionFilters) ([]govdata.Transaction, error)
	FetchDiagnostics(ctx context.Context, filters govdata.DiagnosticFilters) ([]govdata.Diagnostic, error)
}

// Config holds reconciler settings.
type Config struct {
	// Timeout bounds a whole reconciliation run, both fetches included.
	Timeout time.Duration
}

// DefaultConfig returns reconciler settings suitable for production use.
func DefaultConfig() Config {
	return Config{
		Timeout: 60 * time.Second,
	}
}

// Reconciler fetches both datasets for an area and joins them.
type Reconciler struct {
	source  DataSource
	timeout time.Duration
	logger  zerolog.Logger
}

// NewReconciler creates a reconciler over the given data source.
func NewReconciler(source DataSource, cfg Config) (*Reconciler, error) {
	if source == nil {
		return nil, fmt.Errorf("crossref: data source must not be nil")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	return &Reconciler{
		source:  source,
		timeout: cfg.Timeout,
		logger:  log.With().Str("component", "crossref").Logger(),
	}, nil
}

// Reconcile fetches transactions and diagnostics for a postal code over the
// last windowDays days and joins them by surface bucket. Every transaction
// appears in the result exactly once; those without a surface figure or
// without a matching diagnostic carry a nil Diagnostic and confidence "none".
func (r *Reconciler) Reconcile(ctx context.Context, postalCode string, windowDays int) ([]EnrichedRecord, error) {
	if postalCode == "" {
		return nil, fmt.Errorf("crossref: postal code must not be empty")
	}
	if windowDays <= 0 {
		return nil, fmt.Errorf("crossref: window days must be positive, got %d", windowDays)
	}

	start := time.Now()
	dateMin := start.AddDate(0, 0, -windowDays)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var (
		transactions []govdata.Transaction
		diagnostics  []govdata.Diagnostic
	)

	// The two fetches are independent reads; run them concurrently and
	// join only after both complete. Each fetcher already degrades an
	// unavailable upstream to an empty slice, so a returned error here
	// means the run itself was cancelled.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		transactions, err = r.source.FetchTransactions(gctx, govdata.TransactionFilters{
			PostalCode: postalCode,
			DateMin:    dateMin,
		})
		return err
	})
	g.Go(func() error {
		var err error
		diagnostics, err = r.source.FetchDiagnostics(gctx, govdata.DiagnosticFilters{
			PostalCode: postalCode,
			DateMin:    dateMin,
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch datasets for reconciliation: %w", err)
	}

	index := buildDiagnosticIndex(diagnostics)

	enriched := make([]EnrichedRecord, 0, len(transactions))
	matched := 0
	for _, txn := range transactions {
		record := EnrichedRecord{Transaction: txn, Confidence: ConfidenceNone}

		if txn.SurfaceM2 != nil {
			if diag, ok := index[bucketKey(txn.PostalCode, *txn.SurfaceM2)]; ok {
				record.Diagnostic = diag
				record.Confidence = ConfidenceMedium
				matched++
			}
		}

		crossrefMatchesTotal.WithLabelValues(string(record.Confidence)).Inc()
		enriched = append(enriched, record)
	}

	crossrefDurationSeconds.Observe(time.Since(start).Seconds())
	r.logger.Info().
		Str("code_postal", postalCode).
		Int("window_days", windowDays).
		Int("transactions", len(transactions)).
		Int("diagnostics", len(diagnostics)).
		Int("matched", matched).
		Msg("Reconciliation complete")

	return enriched, nil
}

// bucketKey produces the approximate join key: postal code plus the lower
// bound of the 10 m² band the surface falls in.
func bucketKey(postalCode string, surface float64) string {
	bucket := int(math.Floor(surface/10)) * 10
	return fmt.Sprintf("%s:%d", postalCode, bucket)
}

// buildDiagnosticIndex keeps, per bucket, the diagnostic with the most
// recent issue date. Equal dates fall back to the greater diagnostic ID so
// the selection is deterministic for a fixed input set.
func buildDiagnosticIndex(diagnostics []govdata.Diagnostic) map[string]*govdata.Diagnostic {
	index := make(map[string]*govdata.Diagnostic, len(diagnostics))
	for i := range diagnostics {
		diag := &diagnostics[i]
		key := bucketKey(diag.PostalCode, diag.SurfaceM2)

		current, ok := index[key]
		if !ok || newerDiagnostic(diag, current) {
			index[key] = diag
		}
	}
	return index
}

func newerDiagnostic(candidate, current *govdata.Diagnostic) bool {
	if !candidate.IssuedAt.Equal(current.IssuedAt) {
		return candidate.IssuedAt.After(current.IssuedAt)
	}
	return candidate.ID > current.ID
}
