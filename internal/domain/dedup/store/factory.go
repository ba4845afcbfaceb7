package store

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"plant-doctor-bot/internal/platform/config"
)

// Dependencies captures external handles required by certain drivers.
type Dependencies struct {
	SQLiteDB *gorm.DB
}

// New creates a ledger for the configured driver; an empty driver means memory.
func New(ctx context.Context, cfg config.DedupConfig, deps Dependencies) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(cfg), nil
	case DriverSQLite:
		if deps.SQLiteDB == nil {
			return nil, fmt.Errorf("sqlite driver requires database handle")
		}
		return NewSQLite(deps.SQLiteDB, cfg)
	case DriverRedis:
		return NewRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported dedup store driver: %s", driver)
	}
}
