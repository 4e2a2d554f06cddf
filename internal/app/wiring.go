// Package app builds the planner stack and the snapshot backend from
// configuration. Both binaries share it.
package app

import (
	"context"
	"fmt"
	"time"

	"goal_planner/internal/config"
	"goal_planner/internal/database"
	"goal_planner/internal/metrics"
	"goal_planner/internal/redis"
	"goal_planner/internal/repository"
	"goal_planner/internal/services"
	"goal_planner/internal/state"
	"goal_planner/pkg/glm"

	"go.uber.org/zap"
)

const (
	pruneInterval = time.Hour
	evictInterval = time.Minute
)

type Planning struct {
	Planner  services.GoalPlanner
	Splitter services.TaskSplitter
}

func NewPlanning(cfg *config.Config, logger *zap.Logger, recorder metrics.Recorder) (*Planning, error) {
	density, err := services.ParseTaskDensity(cfg.TasksPerMilestone)
	if err != nil {
		return nil, err
	}
	templates, err := services.LoadFallbackTemplate(cfg.FallbackTemplatePath)
	if err != nil {
		return nil, err
	}

	client := glm.NewClient(cfg.GLMAPIURL, cfg.GLMAPIKey, cfg.GLMModel, nil)
	if !client.Configured() {
		logger.Warn("GLM_API_KEY not set, every plan will use the fallback template")
	}

	opts := services.PlannerOptions{
		Density:          density,
		Temperature:      cfg.GLMTemperature,
		DecomposeTimeout: cfg.DecomposeTimeout,
		SplitTimeout:     cfg.SplitTimeout,
	}
	return &Planning{
		Planner:  services.NewGoalPlanner(client, templates, opts, logger, recorder),
		Splitter: services.NewTaskSplitter(client, templates, opts, logger, recorder),
	}, nil
}

// NewPersister opens the configured snapshot backend. The returned func
// releases its connections.
func NewPersister(ctx context.Context, cfg *config.Config, logger *zap.Logger) (state.Persister, func(), error) {
	switch cfg.SnapshotBackend {
	case config.BackendMemory:
		mem := state.NewMemoryPersister()
		go pruneLoop(ctx, mem, cfg.SessionTTL, logger)
		return mem, func() {}, nil

	case config.BackendRedis:
		client, err := redis.Initialize(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using redis snapshot backend", zap.Duration("ttl", cfg.SessionTTL))
		return redis.NewSessionCache(client, cfg.SessionTTL), func() { client.Close() }, nil

	case config.BackendPostgres:
		db, err := database.Initialize(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewSessionRepository(db)
		go pruneLoop(ctx, repo, cfg.SessionTTL, logger)

		logger.Info("using postgres snapshot backend", zap.Duration("ttl", cfg.SessionTTL))
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return repo, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown snapshot backend %q", cfg.SnapshotBackend)
	}
}

type snapshotPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

func pruneLoop(ctx context.Context, pruner snapshotPruner, ttl time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		pruneOnce(ctx, pruner, ttl, time.Now(), logger)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pruneOnce drops memory or postgres snapshots idle for longer than ttl,
// matching the redis backend's key expiry.
func pruneOnce(ctx context.Context, pruner snapshotPruner, ttl time.Duration, now time.Time, logger *zap.Logger) {
	if ttl <= 0 {
		return
	}
	n, err := pruner.DeleteOlderThan(ctx, now.Add(-ttl))
	if err != nil {
		logger.Warn("failed to prune session snapshots", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("pruned expired session snapshots", zap.Int64("count", n))
	}
}

type idleEvicter interface {
	EvictIdle(cutoff time.Time) int
}

// EvictLoop drops in-memory sessions idle for longer than ttl until ctx is
// done, so the process holds no session the snapshot backend has expired.
func EvictLoop(ctx context.Context, sessions idleEvicter, ttl time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evictOnce(sessions, ttl, time.Now(), logger)
		}
	}
}

func evictOnce(sessions idleEvicter, ttl time.Duration, now time.Time, logger *zap.Logger) {
	if ttl <= 0 {
		return
	}
	if n := sessions.EvictIdle(now.Add(-ttl)); n > 0 {
		logger.Info("evicted idle sessions", zap.Int("count", n))
	}
}
