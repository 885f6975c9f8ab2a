package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ecoimmo/fr-gouv-data-client/pkg/dpe"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/govdata"
)

const defaultSearchWindowDays = 365

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	dateMin, err := parseDate(query.Get("date_min"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date_min: "+err.Error())
		return
	}
	dateMax, err := parseDate(query.Get("date_max"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date_max: "+err.Error())
		return
	}

	transactions, err := s.data.FetchTransactions(r.Context(), govdata.TransactionFilters{
		PostalCode:   query.Get("code_postal"),
		CommuneCode:  query.Get("code_commune"),
		DateMin:      dateMin,
		DateMax:      dateMax,
		PropertyType: query.Get("type_local"),
		Limit:        limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "transaction fetch failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(transactions),
		"results": transactions,
	})
}

func (s *server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dateMin, err := parseDate(query.Get("date_min"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date_min: "+err.Error())
		return
	}

	diagnostics, err := s.data.FetchDiagnostics(r.Context(), govdata.DiagnosticFilters{
		PostalCode:   query.Get("code_postal"),
		EnergyClass:  query.Get("classe"),
		BuildingType: query.Get("type_batiment"),
		DateMin:      dateMin,
		Limit:        limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "diagnostic fetch failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(diagnostics),
		"results": diagnostics,
	})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	postalCode := query.Get("code_postal")
	if postalCode == "" {
		writeError(w, http.StatusBadRequest, "code_postal is required")
		return
	}

	windowDays := defaultSearchWindowDays
	if raw := query.Get("window_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "window_days must be a positive integer")
			return
		}
		windowDays = parsed
	}

	records, err := s.reconciler.Reconcile(r.Context(), postalCode, windowDays)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Reconciliation failed")
		writeError(w, http.StatusInternalServerError, "property search failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"results": records,
	})
}

func (s *server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	var input dpe.Input
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	result, err := s.calculator.Recalculate(input)
	if err != nil {
		if errors.Is(err, dpe.ErrInvalidInput) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "recalculation failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	date, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("must be a YYYY-MM-DD date")
	}
	return date, nil
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
