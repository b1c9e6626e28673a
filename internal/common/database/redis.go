// internal/common/database/redis.go
// Redis connection and configuration

package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient creates a Redis client from a URL
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
