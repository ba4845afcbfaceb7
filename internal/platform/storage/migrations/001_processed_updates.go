package migrations

import (
	"gorm.io/gorm"
)

// Migration001ProcessedUpdates creates the update ledger table.
type Migration001ProcessedUpdates struct{}

func (m *Migration001ProcessedUpdates) Version() string {
	return "001_processed_updates"
}

func (m *Migration001ProcessedUpdates) Description() string {
	return "Create processed_updates ledger table"
}

func (m *Migration001ProcessedUpdates) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS processed_updates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			update_id INTEGER NOT NULL,
			chat_id INTEGER,
			kind VARCHAR(32),
			metadata JSON,
			processed_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}

	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_processed_updates_update_id ON processed_updates(update_id)`,
		`CREATE INDEX IF NOT EXISTS idx_processed_updates_chat_id ON processed_updates(chat_id)`,
		`CREATE INDEX IF NOT EXISTS idx_processed_updates_expires_at ON processed_updates(expires_at)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
