package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/beesaferoot/leasekeeper/migration"
)

// ErrNoMigrationsApplied is returned by Down when there is nothing to revert.
var ErrNoMigrationsApplied = errors.New("no migrations to revert")

// Migrator handles the execution of migrations
type Migrator struct {
	db         *gorm.DB
	migrations []*migration.Migration
}

// NewMigrator creates a new Migrator instance
func NewMigrator(db *gorm.DB, migrations ...*migration.Migration) *Migrator {
	return &Migrator{
		db:         db,
		migrations: migrations,
	}
}

// Register adds a migration to the migrator
func (m *Migrator) Register(mr *migration.Migration) {
	m.migrations = append(m.migrations, mr)
}

// Migrations returns the registered migrations ordered by version
func (m *Migrator) Migrations() []*migration.Migration {
	return migration.Sorted(m.migrations)
}

// ensureVersionTable creates the version tracking table if it doesn't exist
func (m *Migrator) ensureVersionTable(ctx context.Context) error {
	return m.db.WithContext(ctx).AutoMigrate(&migration.MigrationRecord{})
}

// AppliedRecords returns applied migrations, newest first
func (m *Migrator) AppliedRecords(ctx context.Context) ([]migration.MigrationRecord, error) {
	if err := m.ensureVersionTable(ctx); err != nil {
		return nil, err
	}

	var records []migration.MigrationRecord
	if err := m.db.WithContext(ctx).Order("applied_at DESC").Order("version DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// GetAppliedVersions returns a map of applied migration versions
func (m *Migrator) GetAppliedVersions(ctx context.Context) (map[string]migration.MigrationRecord, error) {
	records, err := m.AppliedRecords(ctx)
	if err != nil {
		return nil, err
	}

	versions := make(map[string]migration.MigrationRecord, len(records))
	for _, record := range records {
		versions[record.Version] = record
	}
	return versions, nil
}

// Pending returns the migrations that have not been applied yet
func (m *Migrator) Pending(ctx context.Context) ([]*migration.Migration, error) {
	applied, err := m.GetAppliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	var pending []*migration.Migration
	for _, mr := range m.Migrations() {
		if _, ok := applied[mr.Version]; !ok {
			pending = append(pending, mr)
		}
	}
	return pending, nil
}

// Up applies all pending migrations, each in its own transaction together
// with its version record. It returns the migrations that were applied.
func (m *Migrator) Up(ctx context.Context) ([]*migration.Migration, error) {
	if err := migration.Validate(m.migrations); err != nil {
		return nil, err
	}

	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}

	var done []*migration.Migration
	for _, mr := range pending {
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := mr.Up(tx); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", mr.Name, err)
			}

			record := migration.MigrationRecord{
				Version:   mr.Version,
				Name:      mr.Name,
				AppliedAt: time.Now(),
			}
			if err := tx.Create(&record).Error; err != nil {
				return fmt.Errorf("failed to record migration %s: %w", mr.Name, err)
			}
			return nil
		})
		if err != nil {
			return done, err
		}
		done = append(done, mr)
	}
	return done, nil
}

// Down rolls back the last applied migration
func (m *Migrator) Down(ctx context.Context) (*migration.Migration, error) {
	records, err := m.AppliedRecords(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoMigrationsApplied
	}
	lastRecord := records[0]

	var targetMigration *migration.Migration
	for _, mr := range m.migrations {
		if mr.Version == lastRecord.Version {
			targetMigration = mr
			break
		}
	}

	if targetMigration == nil {
		return nil, fmt.Errorf("migration for version %s not found", lastRecord.Version)
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := targetMigration.Down(tx); err != nil {
			return fmt.Errorf("failed to revert migration %s: %w", targetMigration.Name, err)
		}
		if err := tx.Delete(&migration.MigrationRecord{}, "version = ?", lastRecord.Version).Error; err != nil {
			return fmt.Errorf("failed to remove migration record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return targetMigration, nil
}

// Status reports every registered migration with its applied state
func (m *Migrator) Status(ctx context.Context) ([]migration.Status, error) {
	applied, err := m.GetAppliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	var out []migration.Status
	for _, mr := range m.Migrations() {
		st := migration.Status{Version: mr.Version, Name: mr.Name}
		if record, ok := applied[mr.Version]; ok {
			at := record.AppliedAt
			st.Applied = true
			st.AppliedAt = &at
		}
		out = append(out, st)
	}
	return out, nil
}
