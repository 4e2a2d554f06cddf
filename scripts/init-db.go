package main

import (
	"flag"
	"log"

	"goal_planner/internal/config"
	"goal_planner/internal/database"
	"goal_planner/internal/logging"
	"goal_planner/internal/migrations"

	"go.uber.org/zap"
)

func main() {
	reset := flag.Bool("reset", false, "drop existing tables first (deletes all sessions)")
	flag.Parse()

	// Load configuration
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	db, err := database.Initialize(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := migrations.RunMigrations(db, *reset, logger); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	logger.Info("database initialization completed")
}
