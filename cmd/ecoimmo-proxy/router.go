package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/ecoimmo/fr-gouv-data-client/pkg/crossref"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/dpe"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/govdata"
)

var httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ecoimmo_http_request_duration_seconds",
	Help:    "HTTP request duration by route and status",
	Buckets: prometheus.DefBuckets,
}, []string{"route", "status"})

// dataService is the slice of the govdata client the handlers need.
type dataService interface {
	FetchTransactions(ctx context.Context, filters govdata.TransactionFilters) ([]govdata.Transaction, error)
	FetchDiagnostics(ctx context.Context, filters govdata.DiagnosticFilters) ([]govdata.Diagnostic, error)
}

type reconcileService interface {
	Reconcile(ctx context.Context, postalCode string, windowDays int) ([]crossref.EnrichedRecord, error)
}

type recalculateService interface {
	Recalculate(input dpe.Input) (*dpe.Result, error)
}

type server struct {
	data       dataService
	reconciler reconcileService
	calculator recalculateService
}

func newRouter(data dataService, reconciler reconcileService, calculator recalculateService) http.Handler {
	s := &server{data: data, reconciler: reconciler, calculator: calculator}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/transactions", s.handleTransactions)
		r.Get("/diagnostics", s.handleDiagnostics)
		r.Get("/properties/search", s.handleSearch)
		r.Post("/dpe/recalculate", s.handleRecalculate)
	})

	return r
}

// requestID assigns every request a UUID, echoed in the X-Request-ID header.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)

		logger := log.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		httpRequestDuration.WithLabelValues(r.URL.Path, http.StatusText(ww.Status())).
			Observe(duration.Seconds())
		log.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", duration).
			Msg("Request handled")
	})
}
