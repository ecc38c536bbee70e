package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vidgrab/vidgrab/internal/metrics"
)

const keyPrefix = "vidgrab:session:"

// RedisStore keeps one JSON record per key in Redis, letting several CLI
// invocations share a single session.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis using the given URL.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Get retrieves and unmarshals the record for key.
func (s *RedisStore) Get(ctx context.Context, key Key, v any) error {
	data, err := s.client.Get(ctx, keyPrefix+string(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get record %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(data), v); err != nil {
		// Corrupt record: discard it and report the key as absent.
		s.client.Del(ctx, keyPrefix+string(key))
		metrics.IncrCounter(metrics.CounterStoreDiscards)
		return ErrNotFound
	}

	return nil
}

// Set replaces the record for key. SET is atomic, so readers see either
// the old record or the new one.
func (s *RedisStore) Set(ctx context.Context, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", key, err)
	}
	return s.client.Set(ctx, keyPrefix+string(key), data, 0).Err()
}

// Delete removes the record for key.
func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	return s.client.Del(ctx, keyPrefix+string(key)).Err()
}

// Clear removes every session record.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
