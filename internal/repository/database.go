// Package repository provides data access layer using GORM for database operations.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/storefront-badges/internal/config"
	"github.com/aimd54/storefront-badges/internal/models"
	"github.com/aimd54/storefront-badges/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("record not found")

// DB holds the database connection.
type DB struct {
	*gorm.DB
}

// NewDB creates a new database connection for the configured driver.
func NewDB(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel(log)),
	}

	switch cfg.Driver {
	case "sqlite":
		return newSQLiteDB(cfg.SQLite.Path, gormConfig, log)
	case "postgres":
		return newPostgresDB(&cfg.Postgres, gormConfig, log)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func gormLogLevel(log *logger.Logger) gormlogger.LogLevel {
	if log.GetLogger().GetLevel() == zerolog.DebugLevel {
		return gormlogger.Info
	}
	return gormlogger.Warn
}

func newPostgresDB(cfg *config.PostgresConfig, gormConfig *gorm.Config, log *logger.Logger) (*DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Set connection pool settings
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connected to PostgreSQL")

	return &DB{db}, nil
}

func newSQLiteDB(path string, gormConfig *gorm.Config, log *logger.Logger) (*DB, error) {
	db, err := OpenSQLite(path, gormConfig)
	if err != nil {
		return nil, err
	}

	log.Info().Str("path", path).Msg("Opened SQLite database")
	return db, nil
}

// OpenSQLite opens a SQLite database with a single connection, which keeps
// ":memory:" databases shared across goroutines and serialises writers.
func OpenSQLite(path string, gormConfig *gorm.Config) (*DB, error) {
	if gormConfig == nil {
		gormConfig = &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	}

	db, err := gorm.Open(sqlite.Open(path), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &DB{db}, nil
}

// Dialect returns the name of the underlying SQL dialect.
func (db *DB) Dialect() string {
	return db.Dialector.Name()
}

// AutoMigrate creates or updates tables for all models. Used for SQLite; PostgreSQL
// schemas are managed by Migrate.
func (db *DB) AutoMigrate() error {
	return db.DB.AutoMigrate(
		&models.Store{},
		&models.Customer{},
		&models.Review{},
		&models.EngagementAction{},
		&models.ActivityEvent{},
		&models.Award{},
	)
}

// Migrate applies pending schema migrations. On SQLite it falls back to AutoMigrate.
func (db *DB) Migrate() error {
	if db.Dialect() != "postgres" {
		return db.AutoMigrate()
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database is healthy.
func (db *DB) Health(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
