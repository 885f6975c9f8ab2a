package integration

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ecoimmo/fr-gouv-data-client/internal/testutil"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/cache"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/crossref"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/fetch"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/govdata"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/ratelimit"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

func newFetcher(t *testing.T) *fetch.Client {
	t.Helper()
	fetcher, err := fetch.New(fetch.Config{
		UserAgent:       "ecoimmo-integration/1.0",
		MaxAttempts:     3,
		BackoffSchedule: []time.Duration{10 * time.Millisecond, 10 * time.Millisecond},
		Timeout:         10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create fetch client: %v", err)
	}
	return fetcher
}

func newDataClient(t *testing.T, mock *testutil.MockProvider, redisClient *redis.Client, budgets map[string]int) *govdata.Client {
	t.Helper()

	cfg := govdata.DefaultConfig()
	cfg.DVFBaseURL = mock.URL() + "/dvf"
	cfg.ADEMEBaseURL = mock.URL() + "/dpe"

	var limiter *ratelimit.Limiter
	if budgets != nil {
		limiter = ratelimit.NewLimiter(redisClient, budgets)
	}

	client, err := govdata.NewClient(cfg, newFetcher(t), cache.NewStore(redisClient, time.Minute), limiter)
	if err != nil {
		t.Fatalf("Failed to create data client: %v", err)
	}
	return client
}

func dvfRecord(id string, surface float64) map[string]any {
	return map[string]any{
		"id_mutation":         id,
		"date_mutation":       "2025-03-14",
		"valeur_fonciere":     450000,
		"code_postal":         "75015",
		"surface_reelle_bati": surface,
	}
}

func dpeRecord(id string, surface float64) map[string]any {
	return map[string]any{
		"N°DPE":                       id,
		"Date_établissement_DPE":      "2025-06-01",
		"Classe_consommation_énergie": "F",
		"Consommation_énergie":        380.5,
		"Code_postal_(BAN)":           "75015",
		"Surface_habitable_logement":  surface,
	}
}

// TestRedisBackedCacheFlow verifies the full fetch pipeline persists records
// in Redis: a second client with a cold memory layer must still avoid the
// upstream call.
func TestRedisBackedCacheFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockProvider()
	defer mock.Close()
	mock.SetTransactionRecords("/dvf", []map[string]any{dvfRecord("2025-1", 64)})

	ctx := context.Background()
	filters := govdata.TransactionFilters{PostalCode: "75015"}

	first := newDataClient(t, mock, redisClient, nil)
	transactions, err := first.FetchTransactions(ctx, filters)
	if err != nil {
		t.Fatalf("First fetch failed: %v", err)
	}
	if len(transactions) != 1 {
		t.Fatalf("First fetch returned %d transactions, want 1", len(transactions))
	}
	if mock.GetRequestCount() != 1 {
		t.Fatalf("Upstream requests = %d, want 1", mock.GetRequestCount())
	}

	// Fresh client, fresh memory layer, same Redis.
	second := newDataClient(t, mock, redisClient, nil)
	transactions, err = second.FetchTransactions(ctx, filters)
	if err != nil {
		t.Fatalf("Second fetch failed: %v", err)
	}
	if len(transactions) != 1 {
		t.Fatalf("Second fetch returned %d transactions, want 1", len(transactions))
	}
	if mock.GetRequestCount() != 1 {
		t.Errorf("Upstream requests = %d after Redis-cached fetch, want 1", mock.GetRequestCount())
	}
}

// TestReconcileEndToEnd runs the reconciler against both mocked datasets
// with a Redis-backed cache and shared rate-limit window.
func TestReconcileEndToEnd(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockProvider()
	defer mock.Close()
	mock.SetTransactionRecords("/dvf", []map[string]any{
		dvfRecord("2025-1", 64),
		dvfRecord("2025-2", 200),
	})
	mock.SetDiagnosticRecords("/dpe", []map[string]any{dpeRecord("DPE-1", 68)})

	client := newDataClient(t, mock, redisClient, map[string]int{
		govdata.SourceTransactions: 30,
		govdata.SourceDiagnostics:  60,
	})
	reconciler, err := crossref.NewReconciler(client, crossref.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create reconciler: %v", err)
	}

	records, err := reconciler.Reconcile(context.Background(), "75015", 3650)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Reconcile returned %d records, want 2", len(records))
	}

	byID := make(map[string]crossref.EnrichedRecord, len(records))
	for _, record := range records {
		byID[record.Transaction.ID] = record
	}

	matched := byID["2025-1"]
	if matched.Diagnostic == nil || matched.Diagnostic.ID != "DPE-1" || matched.Confidence != crossref.ConfidenceMedium {
		t.Errorf("Record 2025-1 = %+v, want DPE-1 match at medium confidence", matched)
	}
	unmatched := byID["2025-2"]
	if unmatched.Diagnostic != nil || unmatched.Confidence != crossref.ConfidenceNone {
		t.Errorf("Record 2025-2 = %+v, want no match", unmatched)
	}
}

// TestSharedRateLimitWindow verifies the Redis fixed window blocks requests
// beyond the per-source budget across client instances.
func TestSharedRateLimitWindow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	limiter := ratelimit.NewLimiter(redisClient, map[string]int{govdata.SourceTransactions: 3})
	ctx := context.Background()

	allowed := 0
	for i := 0; i < 5; i++ {
		if limiter.Allow(ctx, govdata.SourceTransactions) {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("Allowed %d requests, want 3 (budget)", allowed)
	}

	// A second limiter shares the same window through Redis.
	other := ratelimit.NewLimiter(redisClient, map[string]int{govdata.SourceTransactions: 3})
	if other.Allow(ctx, govdata.SourceTransactions) {
		t.Error("Second limiter instance allowed a request beyond the shared budget")
	}
}
