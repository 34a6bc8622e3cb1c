// Package store builds the report store selected by the detector configuration.
package store

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/spikewatch/cmd/detector/config"
	"github.com/HatiCode/spikewatch/pkg/storage"
)

// New returns a RedisStore when cfg.Storage is "redis" and a MemoryStore
// otherwise. A memory store gets the Redis TTL as its sweep TTL so both
// backends forget silent streams the same way.
func New(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Storage {
	case "redis":
		logger.Info("using redis storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		s, err := storage.NewRedisStore(storage.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.RedisTTL,
		})
		if err != nil {
			return nil, fmt.Errorf("redis storage: %w", err)
		}
		return s, nil
	case "memory", "":
		if cfg.RedisTTL > 0 {
			logger.Info("using in-memory storage", "ttl", cfg.RedisTTL)
			return storage.NewMemoryStoreWithTTL(cfg.RedisTTL, 0), nil
		}
		logger.Info("using in-memory storage")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}
