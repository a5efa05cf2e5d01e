package redis

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// Config carries the connection settings for the flag stores. The engine
// only keeps small bookkeeping sets in redis, so the pool stays small.
type Config struct {
	Address      string
	Password     string
	DB           int
	UseTelemetry bool
	UseTLS       bool
}

type RedisDB struct {
	Client *redis.Client
}

func NewRedisDB(ctx context.Context, cfg Config) (*RedisDB, error) {
	var tlsConfig *tls.Config
	if cfg.UseTLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
		PoolTimeout:  4 * time.Second,
		TLSConfig:    tlsConfig,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if cfg.UseTelemetry {
		if err := redisotel.InstrumentTracing(client); err != nil {
			return nil, err
		}
	}

	return &RedisDB{Client: client}, nil
}
