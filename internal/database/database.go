package database

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/beesaferoot/leasekeeper/internal/config"
)

// Open returns a database connection for the configured driver.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DatabaseURL)
	case config.DriverSQLite:
		dialector = sqlite.Open(SQLiteDSN(cfg.DatabaseURL))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	db, err := gorm.Open(dialector, gormConfig(cfg.LogMode))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// OpenSQLite opens the sqlite database file at path for tests and tools.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(SQLiteDSN(path)), gormConfig("test"))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return db, nil
}

// SQLiteDSN turns a bare path into a DSN with the pragmas the lease engine
// relies on: enforced foreign keys, a busy timeout, and IMMEDIATE
// transactions so concurrent writers queue instead of failing on upgrade.
// A DSN that already carries parameters is used as given.
func SQLiteDSN(path string) string {
	path = strings.TrimPrefix(path, "sqlite://")
	if strings.Contains(path, "?") {
		return path
	}
	path = strings.TrimPrefix(path, "file:")
	return fmt.Sprintf("file:%s?_foreign_keys=1&_busy_timeout=10000&_txlock=immediate&_journal_mode=WAL", path)
}

func gormConfig(mode string) *gorm.Config {
	level := gormLogger.Silent
	if mode == "dev" {
		level = gormLogger.Warn
	}
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(level),
	}
}
