package db

import (
	"fmt"

	"go_flare/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Models lists every table the service owns
func Models() []interface{} {
	return []interface{}{
		&model.Subdomain{},
		&model.ZoneSnapshot{},
	}
}

// Migrate runs database migrations for all models
func Migrate(db *gorm.DB, logger *logrus.Entry) error {
	logger.Info("Starting database migration...")

	models := Models()
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Infof("Database migration completed successfully (%d tables)", len(models))
	return nil
}
