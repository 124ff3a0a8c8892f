package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "sitecrawler:run:"
	redisRunsKey   = "sitecrawler:runs"
)

// RedisBackend stores each run's metadata in a Redis hash.
type RedisBackend struct {
	client *redis.Client
}

// RedisConfig configures the Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisBackend{client: client}, nil
}

// Scope returns the store for runID.
func (b *RedisBackend) Scope(runID string) Store {
	return &redisStore{client: b.client, runID: runID}
}

// Runs lists known run IDs.
func (b *RedisBackend) Runs(ctx context.Context) ([]string, error) {
	ids, err := b.client.SMembers(ctx, redisRunsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

type redisStore struct {
	client *redis.Client
	runID  string
}

func (s *redisStore) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, redisKeyPrefix+s.runID, key, string(data))
		pipe.SAdd(ctx, redisRunsKey, s.runID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Current(ctx context.Context) (map[string]any, error) {
	fields, err := s.client.HGetAll(ctx, redisKeyPrefix+s.runID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run %s: %w", s.runID, err)
	}

	out := make(map[string]any, len(fields))
	for k, raw := range fields {
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			// Written by something other than this store; surface as-is.
			value = raw
		}
		out[k] = value
	}
	return out, nil
}
