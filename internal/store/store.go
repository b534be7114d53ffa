// Package store selects the room registry backend from configuration.
package store

import (
	"context"
	"fmt"

	"github.com/dkeye/livepoll/internal/config"
	"github.com/dkeye/livepoll/internal/core"
	"github.com/dkeye/livepoll/internal/store/memory"
	"github.com/dkeye/livepoll/internal/store/redis"
	"github.com/dkeye/livepoll/internal/store/sqlite"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

func Open(ctx context.Context, cfg config.StoreConfig) (core.RoomStore, error) {
	switch cfg.Driver {
	case DriverMemory, "":
		return memory.New(), nil
	case DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverRedis:
		s, err := redis.Open(ctx, redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
