package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound возвращается, когда ключ отсутствует.
var ErrNotFound = errors.New("cache: ключ не найден")

// RedisCache — TTL-хранилище и блокировки поверх Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedis создаёт кэш.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Acquire захватывает блокировку с TTL. Возвращает false, если блокировка
// уже у кого-то. Используется как страж единственного активного запуска.
func (c *RedisCache) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, key, "1", ttl).Result()
}

// Release снимает блокировку.
func (c *RedisCache) Release(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Set задаёт значение с TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Get возвращает значение ключа.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}
