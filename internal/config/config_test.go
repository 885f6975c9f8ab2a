package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoimmo/fr-gouv-data-client/pkg/dpe"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/govdata"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

	assert.Equal(t, 3, cfg.Fetch.MaxAttempts)
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second, 9 * time.Second}, cfg.Fetch.BackoffSchedule)
	assert.Equal(t, 30*time.Second, cfg.Fetch.Timeout)

	assert.Equal(t, 24*time.Hour, cfg.GovData.DVFCacheTTL)
	assert.Equal(t, 12*time.Hour, cfg.GovData.DPECacheTTL)
	assert.False(t, cfg.GovData.SingleFlight)
	assert.Equal(t, govdata.GranularityPostalCode, cfg.GovData.Anonymization.Granularity)
	assert.False(t, cfg.GovData.Anonymization.IncludeExactAddresses)

	assert.Equal(t, 30, cfg.RateBudgets[govdata.SourceTransactions])
	assert.Equal(t, 60, cfg.RateBudgets[govdata.SourceDiagnostics])

	assert.Equal(t, 1.9, cfg.DPE.ConversionFactors[dpe.SourceElectricity])
	assert.Equal(t, 0.6, cfg.DPE.ConversionFactors[dpe.SourceWood])
	assert.True(t, cfg.DPE.EnergyCosts[dpe.SourceElectricity].Equal(decimal.NewFromFloat(0.2516)))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), cfg.DPE.RentalBanDates[dpe.ClassG])
	assert.Equal(t, time.Date(2034, 1, 1, 0, 0, 0, 0, time.UTC), cfg.DPE.RentalBanDates[dpe.ClassE])
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ECOIMMO_SERVER_ADDR", ":9090")
	t.Setenv("ECOIMMO_REDIS_ENABLED", "false")
	t.Setenv("ECOIMMO_GOVDATA_SINGLE_FLIGHT", "true")
	t.Setenv("ECOIMMO_DPE_CONVERSION_FACTORS_ELECTRICITY", "2.3")
	t.Setenv("ECOIMMO_RATELIMIT_TRANSACTIONS", "10")
	t.Setenv("ECOIMMO_DPE_THRESHOLDS_F", "400")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.False(t, cfg.Redis.Enabled)
	assert.True(t, cfg.GovData.SingleFlight)
	assert.Equal(t, 2.3, cfg.DPE.ConversionFactors[dpe.SourceElectricity])
	assert.Equal(t, 10, cfg.RateBudgets[govdata.SourceTransactions])

	assert.Equal(t, dpe.ClassF, cfg.DPE.ClassThresholds[5].Class)
	assert.Equal(t, 400.0, cfg.DPE.ClassThresholds[5].Max)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecoimmo.yaml")
	content := `
server:
  addr: ":7070"
fetch:
  max_attempts: 5
  backoff_schedule: ["500ms", "2s"]
anonymization:
  granularity: department
dpe:
  ban_dates:
    G: "2026-01-01"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, 5, cfg.Fetch.MaxAttempts)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 2 * time.Second}, cfg.Fetch.BackoffSchedule)
	assert.Equal(t, govdata.GranularityDepartment, cfg.GovData.Anonymization.Granularity)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), cfg.DPE.RentalBanDates[dpe.ClassG])
	// Untouched entries keep their defaults.
	assert.Equal(t, time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC), cfg.DPE.RentalBanDates[dpe.ClassF])
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad backoff entry", map[string]string{"ECOIMMO_FETCH_BACKOFF_SCHEDULE": "soon"}},
		{"bad granularity", map[string]string{"ECOIMMO_ANONYMIZATION_GRANULARITY": "street"}},
		{"bad ban date", map[string]string{"ECOIMMO_DPE_BAN_DATES_G": "january"}},
		{"bad energy cost", map[string]string{"ECOIMMO_DPE_ENERGY_COSTS_GAS": "cheap"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}
