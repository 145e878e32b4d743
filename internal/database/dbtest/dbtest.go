// Package dbtest opens throwaway in-memory databases for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"starterkit/api/internal/database"
	"starterkit/api/internal/models"
	"starterkit/api/internal/singleton"
)

// Open returns a migrated in-memory SQLite database closed at test cleanup.
func Open(t *testing.T) *database.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig(0, zerolog.Nop()))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// Every connection to ":memory:" is a separate database.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.User{}, &models.Account{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() { _ = sqlDB.Close() })
	return database.Wrap(db)
}

// Holder wraps db in a ready singleton, as the application wires it.
func Holder(t *testing.T, db *database.DB) *singleton.Lazy[*database.DB] {
	t.Helper()
	return singleton.New("database", func(ctx context.Context) (*database.DB, error) {
		return db, nil
	})
}
