// Package store records which Telegram update ids have already been handled.
package store

import (
	"context"
	"time"
)

// Driver identifiers accepted in dedup.driver.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

const defaultTTL = 24 * time.Hour

// Record describes one handled update.
type Record struct {
	UpdateID    int64          `json:"update_id"`
	ChatID      int64          `json:"chat_id,omitempty"`
	Kind        string         `json:"kind,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ProcessedAt time.Time      `json:"processed_at"`
}

// Store is the update ledger. MarkProcessed reports true only the first time
// an update id is seen within the TTL window.
type Store interface {
	MarkProcessed(ctx context.Context, rec Record) (bool, error)
	Seen(ctx context.Context, updateID int64) (bool, error)
	CleanupExpired(ctx context.Context) error
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}
