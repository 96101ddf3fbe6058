package database

import (
	"errors"
	"time"

	"github.com/replayforge/backend/internal/replay"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillGameNamePlaceholder = "2026-07-14_backfill_game_name_placeholder"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillGameNamePlaceholder, apply: backfillGameNamePlaceholder},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Early capture agents registered sessions without a game name; listings
// render those rows with the standard placeholder instead of an empty cell.
func backfillGameNamePlaceholder(db *gorm.DB) error {
	return db.Model(&replay.Server{}).
		Where("game_name IS NULL OR game_name = ''").
		Update("game_name", replay.DefaultGameName).Error
}
