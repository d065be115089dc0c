// Package dbtest opens a migrated in-memory SQLite database for use-case tests.
package dbtest

import (
	"testing"

	"halonet-payments/internal/adapter/repository/mysql"
	"halonet-payments/internal/infrastructure/vault"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a private database. The pool holds a single connection, so
// a transaction in flight blocks every other query until it ends.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	sealer, err := vault.NewSealer("dbtest-sealing-key-material")
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	vault.Use(sealer)

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := mysql.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
