package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/hearthdata/market-engine/internal/adapter/gemini"
	httpadapter "github.com/hearthdata/market-engine/internal/adapter/http"
	kafkaadapter "github.com/hearthdata/market-engine/internal/adapter/kafka"
	"github.com/hearthdata/market-engine/internal/adapter/mapbox"
	"github.com/hearthdata/market-engine/internal/config"
	"github.com/hearthdata/market-engine/internal/dataset"
	"github.com/hearthdata/market-engine/internal/domain"
	"github.com/hearthdata/market-engine/internal/observability"
	"github.com/hearthdata/market-engine/internal/query"
	"github.com/hearthdata/market-engine/internal/refresh"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Geocoder backs the nearest-metro fallback; without it resolution
	// stops after the fuzzy-match stage.
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	var notifier dataset.Notifier
	var kafkaNotifier *kafkaadapter.Notifier
	if cfg.KafkaEnabled() {
		kafkaNotifier = kafkaadapter.NewNotifier(cfg.KafkaBrokers, cfg.KafkaRefreshTopic, logger)
		notifier = kafkaNotifier
		logger.Info("kafka refresh notifications enabled", "topic", cfg.KafkaRefreshTopic)
	}

	var narrative domain.NarrativeGenerator
	var narrativeGen *gemini.Generator
	if cfg.NarrativeEnabled {
		narrativeGen, err = gemini.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.NarrativeModel, metrics, logger)
		if err != nil {
			logger.Error("failed to initialize narrative generator", "error", err)
			os.Exit(1)
		}
		narrative = narrativeGen
		logger.Info("narrative generation enabled", "model", cfg.NarrativeModel)
	}

	store := dataset.NewStore(cfg.DataDir, cfg.DatasetURLs, cfg.DownloadTimeout, logger, metrics, notifier)
	service := query.NewService(store, geocoder, narrative, cfg.ResponseCacheTTL, clockwork.NewRealClock(), logger, metrics)
	srv := httpadapter.NewServer(cfg.HTTPAddr, service, store, store, logger)

	// Warm the primary dataset so the first query does not pay the
	// download cost. Failure is not fatal: sources may come up later.
	if _, err := store.Snapshot(ctx, domain.FamilyHomeValue); err != nil {
		logger.Warn("primary dataset not available at startup", "error", err)
	}

	if cfg.RefreshInterval > 0 {
		scheduler := refresh.New(store, cfg.RefreshInterval, logger)
		go func() {
			if err := scheduler.Run(ctx); err != nil {
				logger.Error("refresh scheduler error", "error", err)
			}
		}()
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			logger.Error("kafka notifier close error", "error", err)
		}
	}
	if narrativeGen != nil {
		if err := narrativeGen.Close(); err != nil {
			logger.Error("narrative generator close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
