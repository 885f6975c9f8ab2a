// Package config loads runtime configuration from an optional YAML file and
// ECOIMMO_-prefixed environment variables. Every knob carries a default, so
// the proxy starts with no configuration at all; regulatory constants are
// configurable because they encode law subject to amendment.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/ecoimmo/fr-gouv-data-client/pkg/crossref"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/dpe"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/fetch"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/govdata"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/logging"
)

// Config is the fully parsed runtime configuration.
type Config struct {
	Logging  logging.Config
	Server   Server
	Redis    Redis
	Fetch    fetch.Config
	Cache    Cache
	GovData  govdata.Config
	Crossref crossref.Config
	DPE      dpe.Params

	// RateBudgets holds requests-per-minute budgets per upstream source.
	RateBudgets map[string]int
}

// Server holds HTTP listener settings.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Redis holds cache backend settings. Enabled false runs the proxy with an
// in-process cache only.
type Redis struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// Cache holds the memory-layer TTL; per-dataset TTLs live in GovData.
type Cache struct {
	MemoryTTL time.Duration
}

// Load reads configuration. path may be empty, in which case an
// ecoimmo.yaml is searched in the working directory and /etc/ecoimmo; a
// missing file is not an error, environment and defaults still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ECOIMMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("ecoimmo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ecoimmo")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	return build(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("fetch.user_agent", "ecoimmo-proxy/1.0 (contact@ecoimmo.fr)")
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.backoff_schedule", []string{"1s", "3s", "9s"})
	v.SetDefault("fetch.timeout", "30s")

	v.SetDefault("cache.memory_ttl", "5m")

	// Requests per minute, per upstream source.
	v.SetDefault("ratelimit.transactions", 30)
	v.SetDefault("ratelimit.diagnostics", 60)

	govDefaults := govdata.DefaultConfig()
	v.SetDefault("govdata.dvf_base_url", govDefaults.DVFBaseURL)
	v.SetDefault("govdata.ademe_base_url", govDefaults.ADEMEBaseURL)
	v.SetDefault("govdata.dvf_cache_ttl", "24h")
	v.SetDefault("govdata.dpe_cache_ttl", "12h")
	v.SetDefault("govdata.default_limit", govDefaults.DefaultLimit)
	v.SetDefault("govdata.page_size", govDefaults.PageSize)
	v.SetDefault("govdata.max_page_workers", govDefaults.MaxPageWorkers)
	v.SetDefault("govdata.single_flight", false)

	v.SetDefault("anonymization.granularity", string(govdata.GranularityPostalCode))
	v.SetDefault("anonymization.include_exact_addresses", false)

	v.SetDefault("crossref.timeout", "60s")

	dpeDefaults := dpe.DefaultParams()
	v.SetDefault("dpe.conversion_factors.electricity", dpeDefaults.ConversionFactors[dpe.SourceElectricity])
	v.SetDefault("dpe.conversion_factors.gas", dpeDefaults.ConversionFactors[dpe.SourceGas])
	v.SetDefault("dpe.conversion_factors.fuel_oil", dpeDefaults.ConversionFactors[dpe.SourceFuelOil])
	v.SetDefault("dpe.conversion_factors.wood", dpeDefaults.ConversionFactors[dpe.SourceWood])
	v.SetDefault("dpe.energy_costs.electricity", "0.2516")
	v.SetDefault("dpe.energy_costs.gas", "0.1121")
	v.SetDefault("dpe.energy_costs.fuel_oil", "0.1450")
	v.SetDefault("dpe.energy_costs.wood", "0.0650")
	v.SetDefault("dpe.fallback_energy_cost", "0.15")
	v.SetDefault("dpe.ban_dates.G", "2025-01-01")
	v.SetDefault("dpe.ban_dates.F", "2028-01-01")
	v.SetDefault("dpe.ban_dates.E", "2034-01-01")
	// Inclusive upper class bounds in kWh EP/m²/year; G is unbounded.
	v.SetDefault("dpe.thresholds.A", 70.0)
	v.SetDefault("dpe.thresholds.B", 110.0)
	v.SetDefault("dpe.thresholds.C", 180.0)
	v.SetDefault("dpe.thresholds.D", 250.0)
	v.SetDefault("dpe.thresholds.E", 330.0)
	v.SetDefault("dpe.thresholds.F", 420.0)
	v.SetDefault("dpe.depreciation.E", 6.5)
	v.SetDefault("dpe.depreciation.F", 12.0)
	v.SetDefault("dpe.depreciation.G", 16.0)
	v.SetDefault("dpe.rental_depreciation_factor", dpeDefaults.RentalDepreciationFactor)
	v.SetDefault("dpe.renovation_rates.E.low", 150.0)
	v.SetDefault("dpe.renovation_rates.E.high", 250.0)
	v.SetDefault("dpe.renovation_rates.F.low", 300.0)
	v.SetDefault("dpe.renovation_rates.F.high", 500.0)
	v.SetDefault("dpe.renovation_rates.G.low", 500.0)
	v.SetDefault("dpe.renovation_rates.G.high", 800.0)
	v.SetDefault("dpe.share_sum_tolerance", dpeDefaults.ShareSumTolerance)
}

func build(v *viper.Viper) (*Config, error) {
	backoff, err := parseDurations(v.GetStringSlice("fetch.backoff_schedule"))
	if err != nil {
		return nil, fmt.Errorf("fetch.backoff_schedule: %w", err)
	}

	granularity := govdata.Granularity(v.GetString("anonymization.granularity"))
	switch granularity {
	case govdata.GranularityPostalCode, govdata.GranularityCommune, govdata.GranularityDepartment:
	default:
		return nil, fmt.Errorf("anonymization.granularity: unknown value %q", granularity)
	}

	params, err := buildDPEParams(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Logging: logging.Config{
			Level:  logging.LogLevel(v.GetString("logging.level")),
			Pretty: v.GetBool("logging.pretty"),
		},
		Server: Server{
			Addr:            v.GetString("server.addr"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Redis: Redis{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Fetch: fetch.Config{
			UserAgent:       v.GetString("fetch.user_agent"),
			MaxAttempts:     v.GetInt("fetch.max_attempts"),
			BackoffSchedule: backoff,
			Timeout:         v.GetDuration("fetch.timeout"),
		},
		Cache: Cache{
			MemoryTTL: v.GetDuration("cache.memory_ttl"),
		},
		GovData: govdata.Config{
			DVFBaseURL:     v.GetString("govdata.dvf_base_url"),
			ADEMEBaseURL:   v.GetString("govdata.ademe_base_url"),
			DVFCacheTTL:    v.GetDuration("govdata.dvf_cache_ttl"),
			DPECacheTTL:    v.GetDuration("govdata.dpe_cache_ttl"),
			DefaultLimit:   v.GetInt("govdata.default_limit"),
			PageSize:       v.GetInt("govdata.page_size"),
			MaxPageWorkers: v.GetInt("govdata.max_page_workers"),
			SingleFlight:   v.GetBool("govdata.single_flight"),
			Anonymization: govdata.AnonymizationPolicy{
				Granularity:           granularity,
				IncludeExactAddresses: v.GetBool("anonymization.include_exact_addresses"),
			},
		},
		Crossref: crossref.Config{
			Timeout: v.GetDuration("crossref.timeout"),
		},
		DPE: params,
		RateBudgets: map[string]int{
			govdata.SourceTransactions: v.GetInt("ratelimit.transactions"),
			govdata.SourceDiagnostics:  v.GetInt("ratelimit.diagnostics"),
		},
	}

	return cfg, nil
}

// buildDPEParams starts from the regulatory defaults and overlays the
// configurable tables.
func buildDPEParams(v *viper.Viper) (dpe.Params, error) {
	params := dpe.DefaultParams()

	params.ConversionFactors = map[dpe.EnergySource]float64{
		dpe.SourceElectricity: v.GetFloat64("dpe.conversion_factors.electricity"),
		dpe.SourceGas:         v.GetFloat64("dpe.conversion_factors.gas"),
		dpe.SourceFuelOil:     v.GetFloat64("dpe.conversion_factors.fuel_oil"),
		dpe.SourceWood:        v.GetFloat64("dpe.conversion_factors.wood"),
	}
	params.ShareSumTolerance = v.GetFloat64("dpe.share_sum_tolerance")

	costs := make(map[dpe.EnergySource]decimal.Decimal, 4)
	for source, key := range map[dpe.EnergySource]string{
		dpe.SourceElectricity: "dpe.energy_costs.electricity",
		dpe.SourceGas:         "dpe.energy_costs.gas",
		dpe.SourceFuelOil:     "dpe.energy_costs.fuel_oil",
		dpe.SourceWood:        "dpe.energy_costs.wood",
	} {
		cost, err := decimal.NewFromString(v.GetString(key))
		if err != nil {
			return dpe.Params{}, fmt.Errorf("%s: %w", key, err)
		}
		costs[source] = cost
	}
	params.EnergyCosts = costs

	fallback, err := decimal.NewFromString(v.GetString("dpe.fallback_energy_cost"))
	if err != nil {
		return dpe.Params{}, fmt.Errorf("dpe.fallback_energy_cost: %w", err)
	}
	params.FallbackEnergyCost = fallback

	banDates := make(map[dpe.Class]time.Time, 3)
	for class, key := range map[dpe.Class]string{
		dpe.ClassG: "dpe.ban_dates.G",
		dpe.ClassF: "dpe.ban_dates.F",
		dpe.ClassE: "dpe.ban_dates.E",
	} {
		date, err := time.Parse("2006-01-02", v.GetString(key))
		if err != nil {
			return dpe.Params{}, fmt.Errorf("%s: %w", key, err)
		}
		banDates[class] = date
	}
	params.RentalBanDates = banDates

	params.ClassThresholds = []dpe.Threshold{
		{Class: dpe.ClassA, Max: v.GetFloat64("dpe.thresholds.A")},
		{Class: dpe.ClassB, Max: v.GetFloat64("dpe.thresholds.B")},
		{Class: dpe.ClassC, Max: v.GetFloat64("dpe.thresholds.C")},
		{Class: dpe.ClassD, Max: v.GetFloat64("dpe.thresholds.D")},
		{Class: dpe.ClassE, Max: v.GetFloat64("dpe.thresholds.E")},
		{Class: dpe.ClassF, Max: v.GetFloat64("dpe.thresholds.F")},
		{Class: dpe.ClassG, Max: math.Inf(1)},
	}

	params.DepreciationPercent = map[dpe.Class]float64{
		dpe.ClassE: v.GetFloat64("dpe.depreciation.E"),
		dpe.ClassF: v.GetFloat64("dpe.depreciation.F"),
		dpe.ClassG: v.GetFloat64("dpe.depreciation.G"),
	}
	params.RentalDepreciationFactor = v.GetFloat64("dpe.rental_depreciation_factor")

	rates := make(map[dpe.Class]dpe.RenovationRate, 3)
	for class, key := range map[dpe.Class]string{
		dpe.ClassE: "dpe.renovation_rates.E",
		dpe.ClassF: "dpe.renovation_rates.F",
		dpe.ClassG: "dpe.renovation_rates.G",
	} {
		rates[class] = dpe.RenovationRate{
			LowPerM2:  decimal.NewFromFloat(v.GetFloat64(key + ".low")),
			HighPerM2: decimal.NewFromFloat(v.GetFloat64(key + ".high")),
		}
	}
	params.RenovationRates = rates

	return params, nil
}

func parseDurations(raw []string) ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(raw))
	for _, entry := range raw {
		d, err := time.ParseDuration(entry)
		if err != nil {
			return nil, fmt.Errorf("parse duration %q: %w", entry, err)
		}
		out = append(out, d)
	}
	return out, nil
}
