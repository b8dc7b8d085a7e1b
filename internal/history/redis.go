package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultPointerKey is the Redis key holding the active record ID.
const DefaultPointerKey = "veo_last_video_id"

// Compile-time check that RedisPointer implements Pointer.
var _ Pointer = (*RedisPointer)(nil)

// RedisPointer implements Pointer with a single Redis string key.
type RedisPointer struct {
	client redis.Cmdable
	key    string
}

// NewRedisPointer creates a pointer stored under key. An empty key uses
// DefaultPointerKey.
func NewRedisPointer(client redis.Cmdable, key string) *RedisPointer {
	if key == "" {
		key = DefaultPointerKey
	}
	return &RedisPointer{client: client, key: key}
}

// Get returns the stored ID or ErrNoPointer.
func (p *RedisPointer) Get(ctx context.Context) (string, error) {
	id, err := p.client.Get(ctx, p.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoPointer
		}
		return "", fmt.Errorf("redis get %s: %w", p.key, err)
	}
	if id == "" {
		return "", ErrNoPointer
	}
	return id, nil
}

// Set replaces the stored ID. The key never expires.
func (p *RedisPointer) Set(ctx context.Context, id string) error {
	if err := p.client.Set(ctx, p.key, id, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", p.key, err)
	}
	return nil
}

// Clear deletes the key.
func (p *RedisPointer) Clear(ctx context.Context) error {
	if err := p.client.Del(ctx, p.key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", p.key, err)
	}
	return nil
}
