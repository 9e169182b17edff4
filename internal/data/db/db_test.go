package db

import (
	"path/filepath"
	"testing"

	"github.com/yungbote/clipreview-backend/internal/config"
	"github.com/yungbote/clipreview-backend/internal/platform/logger"
)

func TestOpenSQLiteMigrates(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "test.db")
	svc, err := Open(logger.Nop(), config.DatabaseConfig{Driver: config.DriverSQLite, DSN: dsn, AutoMigrate: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer svc.Close()

	if !svc.DB().Migrator().HasTable("review_run") {
		t.Fatalf("review_run table missing after migrate")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(logger.Nop(), config.DatabaseConfig{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
