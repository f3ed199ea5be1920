package cli

import (
	"context"
	"fmt"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/auth"
	"contest-service/internal/config"
	"contest-service/internal/infra/memory"
	"contest-service/internal/infra/postgres"
	infraredis "contest-service/internal/infra/redis"
	"contest-service/internal/infra/sqlite"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// components is everything a command needs, built from config.
type components struct {
	service  *app.ContestService
	sweeper  *app.Sweeper
	resolver auth.Resolver
	closers  []func()
}

func (c *components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func buildComponents(ctx context.Context, cfg config.Config, logger *zap.Logger) (*components, error) {
	comps := &components{}
	store, err := openStore(ctx, cfg, comps)
	if err != nil {
		comps.Close()
		return nil, err
	}

	opts := []app.Option{
		app.WithLogger(logger),
		app.WithJoinCodeLength(cfg.Contest.JoinCodeLength),
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		comps.closers = append(comps.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			comps.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		bus := infraredis.NewEventBus(client, logger)
		ttl := config.TTLDuration(cfg.Redis.LeaderboardTTL, 30*time.Second)
		opts = append(opts,
			app.WithNotifier(bus),
			app.WithEventSubscriber(bus),
			app.WithLeaderboardCache(infraredis.NewLeaderboardCache(client, store, ttl, logger)))
		logger.Info("redis enabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		broker := memory.NewBroker()
		ttl := config.TTLDuration(cfg.Contest.LeaderboardTTL, 15*time.Second)
		opts = append(opts,
			app.WithNotifier(broker),
			app.WithEventSubscriber(broker),
			app.WithLeaderboardCache(memory.NewLeaderboardCache(store, ttl)))
	}

	comps.service = app.NewContestService(store, opts...)
	comps.sweeper = app.NewSweeper(comps.service)
	if cfg.Auth.JWTSecret != "" {
		comps.resolver = auth.NewJWTResolver(cfg.Auth.JWTSecret)
	} else {
		logger.Warn("no jwt secret configured, trusting identity header", zap.String("header", cfg.Auth.TrustedHeader))
		comps.resolver = auth.NewHeaderResolver(cfg.Auth.TrustedHeader)
	}
	return comps, nil
}

func openStore(ctx context.Context, cfg config.Config, comps *components) (app.Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return nil, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		comps.closers = append(comps.closers, pool.Close)
		zap.L().Info("using postgres store")
		return postgres.NewStore(pool), nil
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		if sqlDB, err := db.DB(); err == nil {
			comps.closers = append(comps.closers, func() { _ = sqlDB.Close() })
		}
		zap.L().Info("using sqlite store", zap.String("path", cfg.Storage.SQLitePath))
		return sqlite.NewStore(db), nil
	case config.DriverMemory:
		zap.L().Info("using in-memory store")
		return memory.NewStore(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
