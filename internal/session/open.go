package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"opsconsole/pkg/config"
	"opsconsole/pkg/db"
)

// Open builds the durable slot selected by cfg.SessionBackend.
func Open(ctx context.Context, cfg config.Config, log *zap.SugaredLogger) (Store, error) {
	switch cfg.SessionBackend {
	case "", "file":
		return NewFileStore(cfg.SessionFile), nil
	case "memory":
		return NewMemoryStore(), nil
	case "redis":
		rdb, err := db.Redis(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		if rdb == nil {
			return nil, fmt.Errorf("session backend redis: REDIS_URL not set")
		}
		return NewRedisStore(rdb, cfg.SessionSlotKey), nil
	case "postgres":
		pool, err := db.Postgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		if pool == nil {
			return nil, fmt.Errorf("session backend postgres: DATABASE_URL not set")
		}
		if err := EnsureSchema(ctx, pool); err != nil {
			return nil, fmt.Errorf("ensure session schema: %w", err)
		}
		return NewPostgresStore(pool, cfg.SessionSlotKey), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}
