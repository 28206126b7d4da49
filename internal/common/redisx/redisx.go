package redisx

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"buffet-system/internal/common/config"
)

// Connect builds the redis client, or returns nil when no address is
// configured — the token resolver treats a nil client as cache-off.
func Connect(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
