package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"pdvsystem/backend/internal/domain"
)

const statusKeyPrefix = "pdv:cashier-status:"

type RedisStatusCache struct {
	client *redis.Client
}

func NewRedisStatusCache(addr string, password string, db int) *RedisStatusCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStatusCache{client: client}
}

func (c *RedisStatusCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisStatusCache) Close() error {
	return c.client.Close()
}

func (c *RedisStatusCache) Get(ctx context.Context, terminalID string) (*domain.SessionStatusView, bool, error) {
	val, err := c.client.Get(ctx, statusKeyPrefix+terminalID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var view domain.SessionStatusView
	if err := json.Unmarshal([]byte(val), &view); err != nil {
		return nil, false, err
	}
	return &view, true, nil
}

func (c *RedisStatusCache) Set(ctx context.Context, terminalID string, value *domain.SessionStatusView, ttl time.Duration) error {
	if value == nil || ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, statusKeyPrefix+terminalID, payload, ttl).Err()
}

func (c *RedisStatusCache) Invalidate(ctx context.Context, terminalID string) error {
	return c.client.Del(ctx, statusKeyPrefix+terminalID).Err()
}

func (c *RedisStatusCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, statusKeyPrefix+"*", 100).Iterator()
	keys := make([]string, 0, 16)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
