package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/replayforge/backend/internal/replay"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsGameName(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&replay.Server{}, &replay.Frame{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	server := replay.Server{ServerID: "session-1", GameName: ""}
	if err := database.Create(&server).Error; err != nil {
		testContext.Fatalf("failed to insert server: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored replay.Server
	if err := database.Where("server_id = ?", server.ServerID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload server: %v", err)
	}
	if stored.GameName != replay.DefaultGameName {
		testContext.Fatalf("expected placeholder game name, got %q", stored.GameName)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillGameNamePlaceholder).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", zap.NewNop()); err == nil {
		testContext.Fatalf("expected error for empty database path")
	}
}

func TestOpenSQLiteIsIdempotent(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "replays.db")

	first, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed first open: %v", err)
	}
	sqlDB, err := first.DB()
	if err != nil {
		testContext.Fatalf("failed to unwrap db: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		testContext.Fatalf("failed to close: %v", err)
	}

	if _, err := OpenSQLite(databasePath, zap.NewNop()); err != nil {
		testContext.Fatalf("failed second open: %v", err)
	}
}
