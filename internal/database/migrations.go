package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aethra/clientdesk/internal/models"
)

// MigrationRecord tracks which migrations have been applied
type MigrationRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;size:255"`
	AppliedAt time.Time `gorm:"autoCreateTime"`
}

// TableName returns the table name for migrations
func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// Migration is one named, ordered schema step
type Migration struct {
	Name string
	Up   func(tx *gorm.DB) error
}

// Migrations lists every schema step in application order
var Migrations = []Migration{
	{
		Name: "001_identity_references",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.CAAccount{}, &models.User{})
		},
	},
	{
		Name: "002_catalogs",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.Tag{}, &models.BusinessType{}, &models.Portal{})
		},
	},
	{
		Name: "003_clients",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.Client{}, &models.ClientService{}, &models.ClientPortal{})
		},
	},
	{
		Name: "004_settings",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.GeneralSetting{}, &models.AgencySetting{})
		},
	},
}

// RunMigrations executes all pending migrations
func RunMigrations(db *gorm.DB, log *zap.Logger) error {
	return applyMigrations(db, log, Migrations)
}

// applyMigrations runs each pending step and its record in one transaction
func applyMigrations(db *gorm.DB, log *zap.Logger, steps []Migration) error {
	if err := db.AutoMigrate(&MigrationRecord{}); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range steps {
		var count int64
		if err := db.Model(&MigrationRecord{}).Where("name = ?", m.Name).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check migration %s: %w", m.Name, err)
		}
		if count > 0 {
			log.Debug("migration already applied", zap.String("migration", m.Name))
			continue
		}

		log.Info("applying migration", zap.String("migration", m.Name))
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", m.Name, err)
			}
			if err := tx.Create(&MigrationRecord{Name: m.Name}).Error; err != nil {
				return fmt.Errorf("failed to record migration %s: %w", m.Name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}
