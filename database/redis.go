package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"settlement-service/config"
)

var RDB *redis.Client

// ConnectRedis is optional: without REDIS_ADDRESS the service uses in-process locks.
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisAddress == "" {
		return nil, nil
	}
	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		PoolSize: 100,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := RDB.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.RedisAddress, err)
	}
	config.GetLogger().WithField("addr", cfg.RedisAddress).Info("connected to redis")
	return RDB, nil
}

func CloseRedis() {
	if RDB != nil {
		if err := RDB.Close(); err != nil {
			config.LogError(config.GetLogger(), "database", "CloseRedis", "close redis", nil, err)
		}
	}
}
