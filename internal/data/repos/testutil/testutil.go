package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"gorm.io/gorm"

	"github.com/yungbote/clipreview-backend/internal/config"
	"github.com/yungbote/clipreview-backend/internal/data/db"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
)

var (
	pgOnce sync.Once
	pg     *db.Service
	pgErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("init logger: %v", err)
	}
	return log
}

// DB returns the shared Postgres test database, skipping when TEST_POSTGRES_DSN is unset.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	pgOnce.Do(func() {
		pg, pgErr = db.Open(logger.Nop(), config.DatabaseConfig{
			Driver:      config.DriverPostgres,
			DSN:         dsn,
			AutoMigrate: true,
		})
	})
	if pgErr != nil {
		tb.Fatalf("init test db: %v", pgErr)
	}
	return pg.DB()
}

// SQLite returns a migrated database file private to the test.
func SQLite(tb testing.TB) *gorm.DB {
	tb.Helper()
	svc, err := db.Open(logger.Nop(), config.DatabaseConfig{
		Driver:      config.DriverSQLite,
		DSN:         filepath.Join(tb.TempDir(), "repo.db"),
		AutoMigrate: true,
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(func() { _ = svc.Close() })
	return svc.DB()
}

// Tx opens a transaction that is rolled back when the test ends.
func Tx(tb testing.TB, gdb *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := gdb.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() { _ = tx.Rollback().Error })
	return tx
}
