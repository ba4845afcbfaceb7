package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"plant-doctor-bot/internal/platform/config"
	"plant-doctor-bot/internal/platform/storage"
)

type sqliteStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewSQLite builds a ledger on the processed_updates table.
func NewSQLite(db *gorm.DB, cfg config.DedupConfig) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{
		db:  db,
		ttl: ttlOrDefault(cfg.TTL),
	}, nil
}

func (s *sqliteStore) MarkProcessed(ctx context.Context, rec Record) (bool, error) {
	if rec.UpdateID <= 0 {
		return false, fmt.Errorf("update id required")
	}
	now := time.Now()
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = now
	}

	var meta []byte
	if len(rec.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(rec.Metadata); err != nil {
			return false, fmt.Errorf("marshal metadata: %w", err)
		}
	}

	inserted := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("update_id = ? AND expires_at <= ?", rec.UpdateID, now).
			Delete(&storage.ProcessedUpdate{}).Error; err != nil {
			return err
		}

		row := &storage.ProcessedUpdate{
			UpdateID:    rec.UpdateID,
			ChatID:      rec.ChatID,
			Kind:        rec.Kind,
			Metadata:    meta,
			ProcessedAt: rec.ProcessedAt,
			ExpiresAt:   now.Add(s.ttl),
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "update_id"}},
			DoNothing: true,
		}).Create(row)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

func (s *sqliteStore) Seen(ctx context.Context, updateID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&storage.ProcessedUpdate{}).
		Where("update_id = ? AND expires_at > ?", updateID, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *sqliteStore) CleanupExpired(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Delete(&storage.ProcessedUpdate{}).
		Error
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var total, active int64
	if err := s.db.WithContext(ctx).Model(&storage.ProcessedUpdate{}).Count(&total).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&storage.ProcessedUpdate{}).
		Where("expires_at > ?", time.Now()).Count(&active).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":        DriverSQLite,
		"total":       total,
		"active":      active,
		"ttl_seconds": int(s.ttl.Seconds()),
	}, nil
}

// Close leaves the shared database handle open; its owner closes it.
func (s *sqliteStore) Close(context.Context) error {
	return nil
}
