package entity

import (
	"context"
	"fmt"

	"github.com/SylphxAI/reify/config"
)

// Open creates the Store selected by cfg. The memory store is the default.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreRedis:
		s, err := NewRedisStore(ctx, RedisConfig{Address: cfg.Address, Prefix: cfg.Prefix})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreSQLite:
		path := cfg.Path
		if path == "" {
			path = "reify.db"
		}
		s, err := OpenSQLite(ctx, path, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
