package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/zyetaone/z-interact-sub000/internal/models"
)

// AllModels returns the list of GORM models for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Image{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
