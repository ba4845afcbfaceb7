package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"plant-doctor-bot/internal/platform/config"
)

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

type memoryStore struct {
	items       map[int64]memoryEntry
	mutex       sync.RWMutex
	ttl         time.Duration
	cleanupFreq time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemory builds an in-process ledger with a background GC loop.
func NewMemory(cfg config.DedupConfig) Store {
	cleanup := cfg.Cleanup
	if cleanup <= 0 {
		cleanup = 10 * time.Minute
	}
	s := &memoryStore{
		items:       make(map[int64]memoryEntry),
		ttl:         ttlOrDefault(cfg.TTL),
		cleanupFreq: cleanup,
		stop:        make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

func (s *memoryStore) gcLoop() {
	ticker := time.NewTicker(s.cleanupFreq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = s.CleanupExpired(context.Background())
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) MarkProcessed(_ context.Context, rec Record) (bool, error) {
	if rec.UpdateID <= 0 {
		return false, fmt.Errorf("update id required")
	}
	now := time.Now()
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = now
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if existing, ok := s.items[rec.UpdateID]; ok && now.Before(existing.expiresAt) {
		return false, nil
	}
	s.items[rec.UpdateID] = memoryEntry{record: rec, expiresAt: now.Add(s.ttl)}
	return true, nil
}

func (s *memoryStore) Seen(_ context.Context, updateID int64) (bool, error) {
	s.mutex.RLock()
	entry, ok := s.items[updateID]
	s.mutex.RUnlock()
	return ok && time.Now().Before(entry.expiresAt), nil
}

func (s *memoryStore) CleanupExpired(_ context.Context) error {
	now := time.Now()
	s.mutex.Lock()
	for id, entry := range s.items {
		if !now.Before(entry.expiresAt) {
			delete(s.items, id)
		}
	}
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Stats(_ context.Context) (map[string]any, error) {
	now := time.Now()
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	active := 0
	for _, entry := range s.items {
		if now.Before(entry.expiresAt) {
			active++
		}
	}
	return map[string]any{
		"type":        DriverMemory,
		"total":       len(s.items),
		"active":      active,
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

func (s *memoryStore) Close(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}
