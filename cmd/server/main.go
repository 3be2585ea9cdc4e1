package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"prescription-analytics-api/internal/backtest"
	"prescription-analytics-api/internal/cache"
	"prescription-analytics-api/internal/config"
	"prescription-analytics-api/internal/dataset"
	"prescription-analytics-api/internal/forecast"
	"prescription-analytics-api/internal/monitoring"
	"prescription-analytics-api/internal/routes"
	"prescription-analytics-api/internal/scheduler"
	"prescription-analytics-api/internal/services"
	"prescription-analytics-api/internal/session"
	"prescription-analytics-api/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.Init(cfg.Logger)
	log := logrus.StandardLogger()

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	log.WithFields(logrus.Fields{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"dataset":     cfg.Dataset.Path,
	}).Info("Starting Prescription Analytics API")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics
	metrics := monitoring.NewPrometheusMetrics(nil)
	monitoring.StartSystemMetricsRecording(ctx, metrics, 30*time.Second)

	// Initialize cache manager
	var distributed cache.Distributed
	if cfg.Cache.RedisEnabled {
		redisStore, err := cache.NewRedisStore(cfg.Cache)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable - continuing with local cache only")
		} else {
			distributed = redisStore
			log.WithField("addr", cfg.Cache.RedisAddr).Info("Redis cache connected")
		}
	}

	cacheManager := cache.NewManager(&cache.Config{
		LocalTTL:          cfg.Cache.LocalTTL,
		DistributedTTL:    cfg.Cache.RedisTTL,
		MaxLocalSize:      cfg.Cache.LocalSize,
		LocalItemsToPrune: 50,
		KeyPrefix:         "rx",
	}, distributed, log)
	cacheManager.SetRecorder(metrics)

	// Dataset and analytics
	loader := dataset.NewLoader(dataset.LoaderConfig{
		Path:            cfg.Dataset.Path,
		Sheet:           cfg.Dataset.Sheet,
		FallbackEnabled: cfg.Dataset.FallbackEnabled,
		Seed:            cfg.Dataset.Seed,
	}, log)
	store := session.NewStore(loader, log)

	forecaster := forecast.NewForecaster(forecast.DefaultConfig(), log)
	generator := backtest.NewGenerator(forecaster, backtest.Config{
		TestPeriods: cfg.Analytics.TestPeriods,
		Workers:     cfg.Analytics.Workers,
		Seed:        cfg.Dataset.Seed,
	}, log)

	analyticsService := services.NewAnalyticsService(store, cacheManager, forecaster, generator, metrics, services.Defaults{
		Horizon:       cfg.Analytics.ForecastHorizon,
		TestPeriods:   cfg.Analytics.TestPeriods,
		Threshold:     cfg.Analytics.Threshold,
		Contamination: cfg.Analytics.Contamination,
		Clusters:      cfg.Analytics.Clusters,
	}, log)

	// Load the dataset before accepting traffic
	loadCtx, loadCancel := context.WithTimeout(ctx, 2*time.Minute)
	if _, err := analyticsService.Summary(loadCtx); err != nil {
		loadCancel()
		log.WithError(err).Fatal("Failed to load dataset")
	}
	loadCancel()

	// Start scheduler
	var jobs *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		jobs = scheduler.NewScheduler(analyticsService, cfg.Scheduler.WarmSpec, cfg.Scheduler.JobTimeout, log)
		if err := jobs.Start(ctx); err != nil {
			log.WithError(err).Error("Failed to start scheduler")
			jobs = nil
		}
	}

	// Initialize HTTP server
	router := gin.New()
	limiter := routes.SetupRoutes(router, cfg, analyticsService, cacheManager, metrics, log)

	stopCleanup := make(chan struct{})
	if limiter != nil {
		limiter.StartCleanup(5*time.Minute, stopCleanup)
	}

	srv := &http.Server{
		Addr:           cfg.Address(),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	close(stopCleanup)
	cancel()
	if jobs != nil {
		if err := jobs.Stop(); err != nil {
			log.WithError(err).Warn("Scheduler did not stop cleanly")
		}
	}

	if err := cacheManager.Close(); err != nil {
		log.WithError(err).Warn("Failed to close cache")
	}

	log.Info("Server exited")
}
