/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package handoff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// KeyPrefix namespaces hand-off keys in Redis.
const KeyPrefix = "clipdeck:handoff:"

// RedisConfig configures RedisChannel.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisChannel stores descriptors in Redis so another process can pick them up.
type RedisChannel struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisChannel connects to Redis and verifies the connection.
func NewRedisChannel(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisChannel, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	return NewRedisChannelFromClient(client, cfg.TTL, logger), nil
}

// NewRedisChannelFromClient wraps an existing client.
func NewRedisChannelFromClient(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisChannel {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisChannel{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "handoff").Str("backend", "redis").Logger(),
	}
}

// Put stores d under tag with the channel TTL.
func (c *RedisChannel) Put(ctx context.Context, tag string, d *Descriptor) error {
	if err := ValidateTag(tag); err != nil {
		return err
	}
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal descriptor: %w", err)
	}
	if err := c.client.Set(ctx, KeyPrefix+tag, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	c.logger.Debug().Str("tag", tag).Int("bytes", d.Size).Msg("descriptor stored")
	return nil
}

// TakeOnce atomically reads and deletes the descriptor under tag.
func (c *RedisChannel) TakeOnce(ctx context.Context, tag string) (*Descriptor, bool, error) {
	if err := ValidateTag(tag); err != nil {
		return nil, false, err
	}
	data, err := c.client.GetDel(ctx, KeyPrefix+tag).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis getdel: %w", err)
	}

	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		c.logger.Warn().Err(err).Str("tag", tag).Msg("dropping malformed descriptor")
		return nil, false, nil
	}
	return &d, true, nil
}

// Close closes the Redis client.
func (c *RedisChannel) Close() error {
	return c.client.Close()
}
