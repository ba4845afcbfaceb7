package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"plant-doctor-bot/internal/platform/config"
)

const defaultRedisPrefix = "plant-doctor:update:"

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedis connects to redis and verifies the connection with PING.
func NewRedis(ctx context.Context, cfg config.DedupConfig) (Store, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}

	return &redisStore{
		client: client,
		ttl:    ttlOrDefault(cfg.TTL),
		prefix: prefix,
	}, nil
}

func (s *redisStore) key(id int64) string {
	return s.prefix + strconv.FormatInt(id, 10)
}

func (s *redisStore) MarkProcessed(ctx context.Context, rec Record) (bool, error) {
	if rec.UpdateID <= 0 {
		return false, fmt.Errorf("update id required")
	}
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	return s.client.SetNX(ctx, s.key(rec.UpdateID), data, s.ttl).Result()
}

func (s *redisStore) Seen(ctx context.Context, updateID int64) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(updateID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *redisStore) CleanupExpired(context.Context) error {
	// Redis expires keys itself.
	return nil
}

func (s *redisStore) Stats(ctx context.Context) (map[string]any, error) {
	var cursor uint64
	total := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return nil, err
		}
		total += len(keys)
		if next == 0 {
			break
		}
		cursor = next
	}
	return map[string]any{
		"type":        DriverRedis,
		"total":       total,
		"active":      total,
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
