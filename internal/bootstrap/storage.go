// Package bootstrap assembles the storage stack from configuration for the
// service binaries and the CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/activitysync/internal/config"
	"example.com/activitysync/internal/events"
	"example.com/activitysync/internal/logger"
	"example.com/activitysync/internal/persistence"
	"example.com/activitysync/internal/persistence/memory"
	"example.com/activitysync/internal/persistence/postgres"
	"example.com/activitysync/internal/persistence/redis"
	"example.com/activitysync/internal/persistence/sqlite"
)

// Storage owns the configured medium and whatever connections back it.
type Storage struct {
	Medium persistence.Medium
	// Feed is set only for mediums shared between processes.
	Feed    events.ChangeFeed
	closers []func() error
}

// OpenStorage connects the medium named by cfg.StorageMedium.
func OpenStorage(ctx context.Context, cfg config.Config, log *logger.Logger) (*Storage, error) {
	log = logger.OrNop(log)
	switch cfg.StorageMedium {
	case config.MediumMemory:
		return &Storage{Medium: memory.New(cfg.StorageCapacityBytes)}, nil

	case config.MediumSQLite:
		m, err := sqlite.Open(cfg.SQLitePath, cfg.StorageCapacityBytes)
		if err != nil {
			return nil, err
		}
		return &Storage{Medium: m, closers: []func() error{m.Close}}, nil

	case config.MediumRedis:
		m, err := redis.Open(ctx, redis.Options{
			Addr:      cfg.RedisAddr,
			Namespace: cfg.RedisNamespace,
			Channel:   cfg.RedisChannel,
		}, log)
		if err != nil {
			return nil, err
		}
		feed := m.Feed()
		return &Storage{Medium: m, Feed: feed, closers: []func() error{feed.Close, m.Close}}, nil

	case config.MediumPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		m := postgres.NewMedium(pool, cfg.PostgresNamespace, cfg.StorageCapacityBytes)
		if err := m.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return &Storage{Medium: m, closers: []func() error{func() error { pool.Close(); return nil }}}, nil
	}
	return nil, fmt.Errorf("unknown storage medium %q", cfg.StorageMedium)
}

// Orchestrator builds an orchestrator over the medium with the tuning from cfg.
func (s *Storage) Orchestrator(cfg config.Config, log *logger.Logger) *persistence.Orchestrator {
	opts := []persistence.Option{persistence.WithLogger(log)}
	if cfg.HeavyThresholdBytes > 0 {
		opts = append(opts, persistence.WithHeavyThreshold(cfg.HeavyThresholdBytes))
	}
	if cfg.AsyncQueueSize > 0 {
		opts = append(opts, persistence.WithQueueSize(cfg.AsyncQueueSize))
	}
	return persistence.NewOrchestrator(s.Medium, opts...)
}

// Close releases connections in the order they were opened.
func (s *Storage) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
