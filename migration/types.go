package migration

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
)

// Migration represents a single schema change
type Migration struct {
	Version string // Unique version identifier (e.g., timestamp)
	Name    string // Human-readable name of the migration
	Up      func(*gorm.DB) error
	Down    func(*gorm.DB) error
}

// MigrationRecord represents a record of an applied migration
type MigrationRecord struct {
	Version   string    `gorm:"primaryKey"`
	Name      string    `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// Status describes whether a known migration has been applied
type Status struct {
	Version   string
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Validate checks that every migration has a version, a name and both
// directions, and that versions are unique.
func Validate(migrations []*Migration) error {
	seen := make(map[string]string, len(migrations))
	for _, m := range migrations {
		if m == nil {
			return fmt.Errorf("nil migration")
		}
		if m.Version == "" {
			return fmt.Errorf("migration %q has no version", m.Name)
		}
		if m.Name == "" {
			return fmt.Errorf("migration %s has no name", m.Version)
		}
		if m.Up == nil || m.Down == nil {
			return fmt.Errorf("migration %s_%s must define Up and Down", m.Version, m.Name)
		}
		if prev, ok := seen[m.Version]; ok {
			return fmt.Errorf("duplicate migration version %s (%s, %s)", m.Version, prev, m.Name)
		}
		seen[m.Version] = m.Name
	}
	return nil
}

// Sorted returns a copy of migrations ordered by version ascending.
func Sorted(migrations []*Migration) []*Migration {
	out := make([]*Migration, len(migrations))
	copy(out, migrations)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Version < out[j].Version
	})
	return out
}
