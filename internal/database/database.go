package database

import (
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/psds-microservice/support-ticket-service/internal/config"
	"github.com/psds-microservice/support-ticket-service/internal/model"
)

// Open creates a GORM connection for the given driver (postgres or sqlite).
func Open(driver, dsn, logLevel string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	case config.DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	mode := logger.Warn
	if logLevel == "debug" {
		mode = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(mode)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == config.DriverSQLite {
		// sqlite допускает одного писателя
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
	}

	slog.Info("database: connected", "driver", driver)
	return db, nil
}

// AutoMigrate creates the tickets table through GORM. Used for sqlite,
// where the embedded postgres migrations do not apply.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Ticket{})
}

// Connect prepares the schema and opens the store for the configured
// driver. Postgres is migrated before connecting, since the migration step
// also creates a missing database; sqlite is auto-migrated after opening.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DB.Driver == config.DriverPostgres {
		if err := MigrateUp(cfg.DatabaseURL()); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	db, err := Open(cfg.DB.Driver, cfg.DSN(), cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if cfg.DB.Driver != config.DriverPostgres {
		if err := AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return db, nil
}
