package app

import (
	"context"
	"errors"

	"webspec-auth/internal/auth/flow"
	"webspec-auth/internal/config"
	"webspec-auth/internal/db"
	"webspec-auth/internal/logger"
	"webspec-auth/internal/redis"
	"webspec-auth/internal/store"
)

type Infra struct {
	Store store.Store
	Flows flow.Store
	Redis *redis.Client // nil unless PENDING_FLOW_STORE=redis
}

func setupInfra(ctx context.Context, cfg config.Config) (*Infra, error) {
	database, err := db.Open(ctx, cfg.StorageDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}

	logger.Info("database ready", map[string]any{
		"driver": cfg.StorageDriver,
	})

	infra := &Infra{Store: store.NewSQLStore(database)}

	switch cfg.PendingFlowStore {
	case config.StoreRedis:
		redisClient, err := redis.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			_ = database.Close()
			return nil, err
		}
		infra.Redis = redisClient
		infra.Flows = flow.NewRedisStore(redisClient.Client)
		logger.Info("redis ready", map[string]any{"addr": cfg.RedisAddr})
	default:
		infra.Flows = flow.NewMemoryStore()
	}

	return infra, nil
}

func (i *Infra) Close() error {
	var errs []error
	if i.Redis != nil {
		errs = append(errs, i.Redis.Close())
	}
	errs = append(errs, i.Store.Close())
	return errors.Join(errs...)
}
