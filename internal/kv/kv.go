// Package kv builds the pooled Redis client shared by the session registry
// and the result cache.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	Addr          string
	SentinelAddrs []string
	MasterName    string
	Password      string
	DB            int
	Timeout       time.Duration
	PoolSize      int
}

// Open returns a client for a standalone server, or a Sentinel-backed
// failover client when sentinel addresses are configured. The connection is
// checked before returning.
func Open(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
	var client redis.UniversalClient
	if len(cfg.SentinelAddrs) > 0 {
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.SentinelAddrs,
			Password:      cfg.Password,
			DB:            cfg.DB,
			DialTimeout:   cfg.Timeout,
			ReadTimeout:   cfg.Timeout,
			WriteTimeout:  cfg.Timeout,
			PoolSize:      cfg.PoolSize,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.Timeout,
			ReadTimeout:  cfg.Timeout,
			WriteTimeout: cfg.Timeout,
			PoolSize:     cfg.PoolSize,
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
