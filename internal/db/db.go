package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"content-pool/internal/config"
	"content-pool/internal/logging"
	"content-pool/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB initializes the database connection and runs migrations
func InitDB(cfg *config.Config) error {
	conn, err := Open(cfg.Storage)
	if err != nil {
		return err
	}
	DB = conn
	logging.DefaultLogger.Info("Connected to %s storage", cfg.Storage.Type)

	return AutoMigrate(DB)
}

// Open opens a gorm connection for the configured storage type
func Open(storage config.StorageConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	}

	switch storage.Type {
	case "postgres":
		if storage.PostgresURL == "" {
			return nil, fmt.Errorf("storage.postgres_url is empty")
		}
		return gorm.Open(postgres.Open(storage.PostgresURL), gormCfg)

	case "sqlite":
		path := storage.SQLitePath
		if path == "" {
			path = ":memory:"
		}
		memory := path == ":memory:" || strings.Contains(path, "mode=memory")
		if !memory {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}

		conn, err := gorm.Open(sqlite.Open(path), gormCfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		// sqlite 只允许单个写连接，内存库在每个连接上都是独立的
		sqlDB.SetMaxOpenConns(1)
		return conn, nil
	}

	return nil, fmt.Errorf("unsupported storage type %q", storage.Type)
}

// AutoMigrate runs database migrations
func AutoMigrate(conn *gorm.DB) error {
	if conn == nil {
		return nil
	}
	return conn.AutoMigrate(
		&models.DomainRecord{},
		&models.ContentSource{},
	)
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the global connection
func Close() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
