// Package redisbus publica eventos y reparte locks por lanzamiento usando Redis.
package redisbus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig son los parámetros de conexión.
type ClientConfig struct {
	Addr     string
	Password string
	DB       int
}

// Client envuelve un *redis.Client ya verificado con PING.
type Client struct {
	rdb *redis.Client
}

// New conecta y hace PING; si Redis no responde devuelve error.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisbus.New: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// Close cierra el pool de conexiones.
func (c *Client) Close() error {
	return c.rdb.Close()
}
