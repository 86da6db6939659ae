package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/clientcomm/core/internal/database/models"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options selects and tunes the database backend
type Options struct {
	Driver   string // sqlite (default) or postgres
	Path     string // sqlite file
	DSN      string // postgres connection string
	LogLevel string
}

// Initialize opens a sqlite database at dbPath and migrates it
func Initialize(dbPath string) (*gorm.DB, error) {
	return Open(Options{Driver: "sqlite", Path: dbPath, LogLevel: "warn"})
}

// Open creates a database connection for the configured driver and runs migrations
func Open(opts Options) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(opts.LogLevel)),
	}

	var dialector gorm.Dialector
	switch strings.ToLower(opts.Driver) {
	case "", "sqlite":
		dir := filepath.Dir(opts.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		// Wait on a busy writer instead of failing.
		dialector = sqlite.Open(opts.Path + "?_busy_timeout=5000")
	case "postgres":
		// lib/pq is the database/sql driver underneath.
		dialector = postgres.New(postgres.Config{
			DriverName: "postgres",
			DSN:        opts.DSN,
		})
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", opts.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

// runMigrations runs all database migrations
func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Department{},
		&models.User{},
		&models.Client{},
		&models.ClientStatus{},
		&models.ReportingRelationship{},
		&models.Message{},
		&models.Attachment{},
		&models.CourtDateCSV{},
		&models.Job{},
		&models.Log{},
	); err != nil {
		return err
	}

	// Relationships created before categories existed
	db.Model(&models.ReportingRelationship{}).
		Where("category = '' OR category IS NULL").
		Update("category", models.CategoryNone)

	return nil
}
