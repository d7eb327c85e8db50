package tokenstore

import (
	"context"
	"fmt"

	"github.com/Checker-Finance/fleet-telemetry/internal/auth"
	"github.com/Checker-Finance/fleet-telemetry/pkg/config"
)

// Open builds the store selected by cfg.TokenStore.
func Open(ctx context.Context, cfg *config.Config) (auth.Store, error) {
	switch cfg.TokenStore {
	case "", "dotenv":
		return NewDotenvStore(cfg.DotenvPath), nil
	case "redis":
		return NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, 0)
	case "keyring":
		return OpenKeyring(cfg.KeyringService)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown token store %q", cfg.TokenStore)
	}
}

var (
	_ auth.Store = (*DotenvStore)(nil)
	_ auth.Store = (*RedisStore)(nil)
	_ auth.Store = (*KeyringStore)(nil)
	_ auth.Store = (*MemoryStore)(nil)
)
