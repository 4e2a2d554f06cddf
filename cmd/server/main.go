package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"goal_planner/internal/app"
	"goal_planner/internal/config"
	"goal_planner/internal/handlers"
	"goal_planner/internal/logging"
	"goal_planner/internal/metrics"
	"goal_planner/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheusRecorder(reg)

	// Planner, splitter and session storage
	planning, err := app.NewPlanning(cfg, logger, recorder)
	if err != nil {
		logger.Fatal("failed to configure planner", zap.Error(err))
	}
	persister, closePersister, err := app.NewPersister(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open snapshot backend", zap.String("backend", cfg.SnapshotBackend), zap.Error(err))
	}
	defer closePersister()

	sessionService := services.NewSessionService(planning.Planner, planning.Splitter, persister, logger, nil)
	go app.EvictLoop(ctx, sessionService, cfg.SessionTTL, logger)

	// Setup routes
	router := gin.Default()
	handlers.RegisterRoutes(router,
		handlers.NewPlannerHandler(planning.Planner, planning.Splitter, logger),
		handlers.NewSessionHandler(sessionService, logger),
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	)

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("server starting",
		zap.String("port", cfg.ServerPort),
		zap.String("model", cfg.GLMModel),
		zap.String("backend", cfg.SnapshotBackend),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("failed to start server", zap.Error(err))
	}
	logger.Info("server stopped")
}
