package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// Client represents the result backend Redis client.
type Client struct {
	rdb *redis.Client
}

// Cmdable exposes the command surface for repositories.
func (c *Client) Cmdable() redis.Cmdable {
	return c.rdb
}

// Ping checks that Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the client for graceful shutdown.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// MustNewClient creates a new Redis client from redis.url.
func MustNewClient() *Client {
	opts, err := redis.ParseURL(viper.GetString("redis.url"))
	if err != nil {
		panic(err)
	}
	if poolSize := viper.GetInt("redis.pool_size"); poolSize > 0 {
		opts.PoolSize = poolSize
	}
	if timeout := viper.GetDuration("redis.dial_timeout"); timeout > 0 {
		opts.DialTimeout = timeout
	}

	rdb := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		_ = rdb.Close()
		panic(err)
	}

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		panic(err)
	}

	slog.Info("Redis connected", "addr", opts.Addr, "db", opts.DB)

	return &Client{rdb: rdb}
}
