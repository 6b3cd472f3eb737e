// Package store opens the TownRepository selected by configuration.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/town-data-etl/internal/adapter/memory"
	"github.com/couchcryptid/town-data-etl/internal/adapter/postgres"
	"github.com/couchcryptid/town-data-etl/internal/adapter/rediscache"
	"github.com/couchcryptid/town-data-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/town-data-etl/internal/config"
	"github.com/couchcryptid/town-data-etl/internal/domain"
	"github.com/couchcryptid/town-data-etl/internal/observability"
)

// Open builds the configured repository, creates its schema, and wraps it in
// the Redis cache when REDIS_ADDR is set. The returned close function
// releases every resource Open acquired.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (domain.TownRepository, func() error, error) {
	var (
		repo    domain.TownRepository
		closers []func() error
	)

	switch cfg.StoreDriver {
	case config.StoreSQLite:
		r, err := sqlite.NewRepository(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		if err := r.EnsureSchema(ctx); err != nil {
			r.Close()
			return nil, nil, err
		}
		repo = r
		closers = append(closers, r.Close)
	case config.StorePostgres:
		r, err := postgres.NewRepository(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := r.EnsureSchema(ctx); err != nil {
			r.Close()
			return nil, nil, err
		}
		repo = r
		closers = append(closers, func() error { r.Close(); return nil })
	case config.StoreMemory:
		repo = memory.NewRepository()
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	logger.Info("town store opened", "driver", cfg.StoreDriver)

	if cfg.CacheEnabled() {
		client := rediscache.NewClient(cfg.RedisAddr)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, lookups will fall back to the store", "addr", cfg.RedisAddr, "error", err)
		}
		repo = rediscache.New(repo, client, cfg.RedisTTL, logger, metrics)
		closers = append(closers, client.Close)
		logger.Info("snapshot cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.RedisTTL)
	}

	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	return repo, closeAll, nil
}
