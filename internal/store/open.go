package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/zhouzirui/relay-chat/backend/internal/config"
)

// Open builds the configured driver and wraps it in Bounded.
func Open(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (*Bounded, error) {
	var (
		backend Store
		err     error
	)

	switch cfg.Driver {
	case config.StoreMemory:
		backend = NewMemoryStore(cfg.HistoryLimit)
	case config.StoreBadger:
		backend, err = OpenBadger(cfg.BadgerPath, cfg.HistoryLimit)
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err = rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
		}
		backend = NewRedisStore(rdb, cfg.RedisKey, cfg.HistoryLimit)
	case config.StorePostgres:
		backend, err = OpenPostgres(ctx, cfg.PostgresURL, cfg.HistoryLimit)
	case config.StoreMongo:
		backend, err = OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.HistoryLimit)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	log.Info("message store ready",
		zap.String("driver", cfg.Driver),
		zap.Int("historyLimit", cfg.HistoryLimit),
		zap.Duration("timeout", cfg.Timeout))
	return NewBounded(backend, cfg.Timeout), nil
}
