package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"cloudmedia/internal/models"
)

// Config controls the GORM connection.
type Config struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        gormlogger.LogLevel
}

// Database handles database operations
type Database struct {
	db *gorm.DB
}

// Open connects to postgres when the DSN looks like one and to a sqlite file
// otherwise.
func Open(cfg Config) (*Database, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is empty")
	}
	if cfg.LogLevel == 0 {
		cfg.LogLevel = gormlogger.Warn
	}

	dialector := sqlite.Open(cfg.DSN)
	if isPostgres(cfg.DSN) {
		dialector = postgres.Open(cfg.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(cfg.LogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("retrieve sql db: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &Database{db: db}, nil
}

// New wraps an existing connection.
func New(db *gorm.DB) *Database {
	return &Database{db: db}
}

func isPostgres(dsn string) bool {
	dsn = strings.ToLower(dsn)
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// Migrate applies database schema changes.
func (d *Database) Migrate(ctx context.Context, log zerolog.Logger) error {
	if err := d.db.WithContext(ctx).AutoMigrate(&models.Asset{}, &models.Conversion{}); err != nil {
		return err
	}
	log.Info().Msg("applied asset and conversion migrations")
	return nil
}

// Ping checks the underlying connection.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn against a Database bound to one transaction.
func (d *Database) Transaction(ctx context.Context, fn func(tx *Database) error) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Database{db: tx})
	})
}

// CreateAsset inserts a new asset row.
func (d *Database) CreateAsset(ctx context.Context, asset *models.Asset) error {
	return d.db.WithContext(ctx).Create(asset).Error
}

// FindAsset returns the asset when it exists and belongs to userID, nil
// otherwise.
func (d *Database) FindAsset(ctx context.Context, id, userID string) (*models.Asset, error) {
	var asset models.Asset
	err := d.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

// FindAssets returns the owned assets of the given kind among ids, oldest first.
func (d *Database) FindAssets(ctx context.Context, ids []string, userID, resourceType string) ([]models.Asset, error) {
	var assets []models.Asset
	if len(ids) == 0 {
		return assets, nil
	}
	err := d.db.WithContext(ctx).
		Where("id IN ? AND user_id = ? AND resource_type = ?", ids, userID, resourceType).
		Order("created_at ASC").
		Find(&assets).Error
	return assets, err
}

// UpdateAsset persists every field of asset.
func (d *Database) UpdateAsset(ctx context.Context, asset *models.Asset) error {
	return d.db.WithContext(ctx).Save(asset).Error
}

// CreateConversion appends a conversion record.
func (d *Database) CreateConversion(ctx context.Context, conv *models.Conversion) error {
	return d.db.WithContext(ctx).Omit("Asset").Create(conv).Error
}

// ListConversions returns the user's conversions of kind, newest first, with
// a summary of the referenced asset.
func (d *Database) ListConversions(ctx context.Context, userID, kind string) ([]models.Conversion, error) {
	var rows []models.Conversion
	err := d.db.WithContext(ctx).
		Preload("Asset", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "public_id", "resource_type", "original_format", "bytes")
		}).
		Where("user_id = ? AND kind = ?", userID, kind).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
