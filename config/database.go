package config

import (
	"fmt"

	"github.com/kendall-kelly/usta-go-api/logger"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var DB *gorm.DB

// OpenDatabase opens a gorm connection for the given driver without touching the global handle
func OpenDatabase(driver, url string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{TranslateError: true}

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(url)
	case DriverPostgres, "":
		dialector = postgres.Open(url)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// ConnectDatabase establishes the global database connection described by cfg
func ConnectDatabase(cfg *Config) error {
	db, err := OpenDatabase(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}

	DB = db
	logger.Log.Info("Database connection established", zap.String("driver", cfg.DatabaseDriver))
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// SetDB sets the database instance (primarily for testing)
func SetDB(db *gorm.DB) {
	DB = db
}
