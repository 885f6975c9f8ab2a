package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ecoimmo/fr-gouv-data-client/pkg/crossref"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/dpe"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/govdata"
)

type stubData struct {
	transactions []govdata.Transaction
	diagnostics  []govdata.Diagnostic
	txnFilters   govdata.TransactionFilters
}

func (s *stubData) FetchTransactions(_ context.Context, filters govdata.TransactionFilters) ([]govdata.Transaction, error) {
	s.txnFilters = filters
	return s.transactions, nil
}

func (s *stubData) FetchDiagnostics(_ context.Context, _ govdata.DiagnosticFilters) ([]govdata.Diagnostic, error) {
	return s.diagnostics, nil
}

type stubReconciler struct {
	records    []crossref.EnrichedRecord
	err        error
	postalCode string
	windowDays int
}

func (s *stubReconciler) Reconcile(_ context.Context, postalCode string, windowDays int) ([]crossref.EnrichedRecord, error) {
	s.postalCode = postalCode
	s.windowDays = windowDays
	return s.records, s.err
}

func newTestServer(t *testing.T, data *stubData, reconciler *stubReconciler) http.Handler {
	t.Helper()
	calculator, err := dpe.NewCalculator(dpe.DefaultParams())
	if err != nil {
		t.Fatalf("NewCalculator() error = %v", err)
	}
	return newRouter(data, reconciler, calculator)
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestServer(t, &stubData{}, &stubReconciler{})

	rec := doRequest(t, handler, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestTransactionsEndpoint(t *testing.T) {
	surface := 64.0
	data := &stubData{transactions: []govdata.Transaction{{
		ID:         "2025-1",
		Date:       time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		Price:      450000,
		PostalCode: "75015",
		SurfaceM2:  &surface,
	}}}
	handler := newTestServer(t, data, &stubReconciler{})

	rec := doRequest(t, handler, http.MethodGet,
		"/api/v1/transactions?code_postal=75015&date_min=2025-01-01&limit=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Count   int                   `json:"count"`
		Results []govdata.Transaction `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Count != 1 || len(payload.Results) != 1 {
		t.Errorf("count = %d, results = %d; want 1, 1", payload.Count, len(payload.Results))
	}

	if data.txnFilters.PostalCode != "75015" || data.txnFilters.Limit != 10 {
		t.Errorf("filters = %+v, want postal 75015 limit 10", data.txnFilters)
	}
	if data.txnFilters.DateMin.Format("2006-01-02") != "2025-01-01" {
		t.Errorf("date min = %v, want 2025-01-01", data.txnFilters.DateMin)
	}
}

func TestTransactionsEndpoint_BadParams(t *testing.T) {
	handler := newTestServer(t, &stubData{}, &stubReconciler{})

	for _, target := range []string{
		"/api/v1/transactions?limit=many",
		"/api/v1/transactions?limit=-1",
		"/api/v1/transactions?date_min=last-tuesday",
	} {
		rec := doRequest(t, handler, http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestSearchEndpoint(t *testing.T) {
	reconciler := &stubReconciler{records: []crossref.EnrichedRecord{{
		Transaction: govdata.Transaction{ID: "2025-1", PostalCode: "75015"},
		Confidence:  crossref.ConfidenceNone,
	}}}
	handler := newTestServer(t, &stubData{}, reconciler)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/properties/search?code_postal=75015&window_days=90", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if reconciler.postalCode != "75015" || reconciler.windowDays != 90 {
		t.Errorf("reconciler called with (%s, %d), want (75015, 90)", reconciler.postalCode, reconciler.windowDays)
	}
}

func TestSearchEndpoint_Validation(t *testing.T) {
	handler := newTestServer(t, &stubData{}, &stubReconciler{})

	for _, target := range []string{
		"/api/v1/properties/search",
		"/api/v1/properties/search?code_postal=75015&window_days=0",
		"/api/v1/properties/search?code_postal=75015&window_days=everything",
	} {
		rec := doRequest(t, handler, http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestRecalculateEndpoint(t *testing.T) {
	handler := newTestServer(t, &stubData{}, &stubReconciler{})

	body := `{
		"original_class": "F",
		"original_primary_energy": 621,
		"consumption": {"heating_kwh": 200, "hot_water_kwh": 40, "cooling_kwh": 5, "lighting_kwh": 10, "auxiliary_kwh": 15},
		"energy_mix": {"electricity": 0.95, "gas": 0.05},
		"surface_m2": 65,
		"is_rental": true
	}`

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/dpe/recalculate", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var result dpe.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.RecalculatedClass != dpe.ClassG || !result.IsPassoireThermique {
		t.Errorf("got class %s (passoire %v), want G passoire", result.RecalculatedClass, result.IsPassoireThermique)
	}
	if result.Urgency != dpe.UrgencyCritical {
		t.Errorf("urgency = %s, want critical", result.Urgency)
	}
}

func TestRecalculateEndpoint_InvalidInput(t *testing.T) {
	handler := newTestServer(t, &stubData{}, &stubReconciler{})

	body := `{
		"original_class": "F",
		"consumption": {"heating_kwh": 200},
		"energy_mix": {"electricity": 1.0},
		"surface_m2": -5
	}`

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/dpe/recalculate", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422; body %s", rec.Code, rec.Body.String())
	}
}

func TestRecalculateEndpoint_MalformedBody(t *testing.T) {
	handler := newTestServer(t, &stubData{}, &stubReconciler{})

	for _, body := range []string{"{", `{"unknown_field": 1}`} {
		rec := doRequest(t, handler, http.MethodPost, "/api/v1/dpe/recalculate", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newTestServer(t, &stubData{}, &stubReconciler{})

	rec := doRequest(t, handler, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing standard collectors")
	}
}
