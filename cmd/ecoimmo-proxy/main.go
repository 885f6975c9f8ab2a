// ecoimmo-proxy serves French property open data (DVF transactions, ADEME
// energy diagnostics) with caching, anonymization, approximate
// cross-referencing, and DPE 2026 regulatory recalculation.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ecoimmo/fr-gouv-data-client/internal/config"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/cache"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/crossref"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/dpe"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/fetch"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/govdata"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/logging"
	"github.com/ecoimmo/fr-gouv-data-client/pkg/ratelimit"
)

func main() {
	configPath := flag.String("config", "", "path to an ecoimmo.yaml configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Setup(cfg.Logging)

	redisClient := connectRedis(cfg.Redis)
	if redisClient != nil {
		defer redisClient.Close()
	}

	fetcher, err := fetch.New(cfg.Fetch)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create fetch client")
	}

	store := cache.NewStore(redisClient, cfg.Cache.MemoryTTL)
	limiter := ratelimit.NewLimiter(redisClient, cfg.RateBudgets)

	dataClient, err := govdata.NewClient(cfg.GovData, fetcher, store, limiter)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create data client")
	}

	reconciler, err := crossref.NewReconciler(dataClient, cfg.Crossref)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create reconciler")
	}

	calculator, err := dpe.NewCalculator(cfg.DPE)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create DPE calculator")
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: newRouter(dataClient, reconciler, calculator),
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Starting ecoimmo proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

// connectRedis pings the configured backend. Failure is not fatal: the
// proxy degrades to the in-process cache layer and local rate limiting.
func connectRedis(cfg config.Redis) *redis.Client {
	if !cfg.Enabled {
		log.Info().Msg("Redis disabled, running with in-process cache only")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).
			Msg("Redis unreachable, degrading to in-process cache only")
		client.Close()
		return nil
	}

	log.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")
	return client
}
