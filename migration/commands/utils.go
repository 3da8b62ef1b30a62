package commands

import (
	"gorm.io/gorm"

	"github.com/beesaferoot/leasekeeper/internal/config"
	"github.com/beesaferoot/leasekeeper/internal/database"
	"github.com/beesaferoot/leasekeeper/migration/driver"
	"github.com/beesaferoot/leasekeeper/migration/schema"
)

func getDB() (*gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return database.Open(cfg)
}

// withMigrator opens the configured database, runs fn with a migrator for
// the leasekeeper schema, and closes the connection afterwards.
func withMigrator(fn func(db *gorm.DB, m *driver.Migrator) error) error {
	db, err := getDB()
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	return fn(db, driver.NewMigrator(db, schema.All()...))
}
