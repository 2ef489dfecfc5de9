package db

import (
	"calorie_tracker/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus"
	"gorm.io/gorm" // GORM ORM library
)

// Migrate performs automatic migration for the database schema
func Migrate(db *gorm.DB) error {
	// AutoMigrate creates the users and ledger tables with their unique indexes
	if err := db.AutoMigrate(&domain.User{}, &domain.LedgerEntry{}); err != nil {
		return err
	}
	logrus.Info("Migration completed.") // Log successful migration
	return nil
}
