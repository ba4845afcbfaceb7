package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"plant-doctor-bot/internal/platform/errors"
	"plant-doctor-bot/internal/platform/storage/migrations"
)

// ProcessedUpdate is one row of the update ledger.
type ProcessedUpdate struct {
	ID          uint           `gorm:"primaryKey"`
	UpdateID    int64          `gorm:"uniqueIndex;not null"`
	ChatID      int64          `gorm:"index"`
	Kind        string         `gorm:"type:varchar(32)"`
	Metadata    datatypes.JSON `json:"metadata,omitempty"`
	ProcessedAt time.Time      `gorm:"not null"`
	ExpiresAt   time.Time      `gorm:"index;not null"`
}

// TableName pins the ledger table name.
func (ProcessedUpdate) TableName() string {
	return "processed_updates"
}

// Open opens the SQLite database at dsn and applies pending migrations.
// File-backed DSNs get their parent directory created first.
func Open(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New(errors.KindStorage, "storage.open", "sqlite dsn is empty")
	}

	if !isMemoryDSN(dsn) {
		dir := filepath.Dir(strings.TrimPrefix(dsn, "file:"))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to create data directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to open database", err)
	}

	manager := NewMigrationManager(db)
	manager.AddMigration(&migrations.Migration001ProcessedUpdates{})
	if err := manager.RunMigrations(); err != nil {
		return nil, err
	}

	return db, nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "storage.close", "failed to get sql db", err)
	}
	if err := sqlDB.Close(); err != nil {
		return errors.Wrap(errors.KindStorage, "storage.close", "failed to close database", err)
	}
	return nil
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

// Describe renders a short human label for logs.
func Describe(dsn string) string {
	if isMemoryDSN(dsn) {
		return "sqlite(memory)"
	}
	return fmt.Sprintf("sqlite(%s)", dsn)
}
