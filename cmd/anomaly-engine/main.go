package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ailogmon/anomaly-engine/internal/api"
	"github.com/ailogmon/anomaly-engine/internal/config"
	"github.com/ailogmon/anomaly-engine/internal/engine"
	"github.com/ailogmon/anomaly-engine/internal/metrics"
	"github.com/ailogmon/anomaly-engine/internal/repo"
	"github.com/ailogmon/anomaly-engine/internal/services"
	"github.com/ailogmon/anomaly-engine/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting anomaly-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	store := repo.NewArtifactStore(cfg.Model.Dir, cfg.Model.Filename)
	trainer := engine.NewTrainer(logger,
		engine.WithForestSize(cfg.Model.Trees, cfg.Model.SampleSize),
		engine.WithSeed(cfg.Model.Seed),
	)
	scoring := services.NewScoringService(logger, store, trainer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A missing artifact just means the service starts Empty; a corrupt one
	// is logged and ignored so the process can retrain over it.
	if err := scoring.LoadPersisted(ctx); err != nil {
		switch {
		case errors.Is(err, repo.ErrArtifactNotFound):
			logger.Warn("no persisted model found; train one via /api/v1/train")
		case errors.Is(err, repo.ErrArtifactCorrupt):
			logger.Error("persisted model unreadable; starting without a model", slog.Any("error", err))
		default:
			logger.Error("failed to load persisted model", slog.Any("error", err))
		}
	}

	server, err := api.NewServer(cfg.Server, logger, scoring)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("api server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("api server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("anomaly-engine stopped")
}
