// Package schema holds the leasekeeper database migrations.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/beesaferoot/leasekeeper/migration"
	"github.com/beesaferoot/leasekeeper/models"
)

const (
	// ActiveContractIndex enforces at most one non-deleted ACTIVE or
	// EXPIRING_SOON contract per apartment.
	ActiveContractIndex = "idx_contracts_one_active_per_apartment"
	// ContractNumberIndex enforces unique contract numbers.
	ContractNumberIndex = "idx_contracts_contract_number"
)

// All returns every leasekeeper migration in version order.
func All() []*migration.Migration {
	return []*migration.Migration{
		{
			Version: "20250101000001",
			Name:    "create_property_tables",
			Up: func(db *gorm.DB) error {
				return db.Migrator().CreateTable(&models.Building{}, &models.Floor{}, &models.Apartment{}, &models.Resident{})
			},
			Down: func(db *gorm.DB) error {
				return db.Migrator().DropTable(&models.Resident{}, &models.Apartment{}, &models.Floor{}, &models.Building{})
			},
		},
		{
			Version: "20250101000002",
			Name:    "create_contracts",
			Up: func(db *gorm.DB) error {
				if err := db.Migrator().CreateTable(&models.Contract{}); err != nil {
					return err
				}
				return db.Exec(fmt.Sprintf(
					`CREATE UNIQUE INDEX %s ON contracts (apartment_id) WHERE is_deleted = false AND status IN ('%s', '%s')`,
					ActiveContractIndex, models.ContractActive, models.ContractExpiringSoon,
				)).Error
			},
			Down: func(db *gorm.DB) error {
				return db.Migrator().DropTable(&models.Contract{})
			},
		},
		{
			Version: "20250101000003",
			Name:    "create_contract_history",
			Up: func(db *gorm.DB) error {
				return db.Migrator().CreateTable(&models.ContractHistory{})
			},
			Down: func(db *gorm.DB) error {
				return db.Migrator().DropTable(&models.ContractHistory{})
			},
		},
	}
}

// Verify checks that the live database carries every leasekeeper table
// with all of its model columns, plus the two unique indexes the lease
// engine depends on.
func Verify(db *gorm.DB) error {
	m := db.Migrator()

	var missing []string
	for name, model := range models.ModelTypeRegistry {
		if !m.HasTable(model) {
			missing = append(missing, "table "+name)
			continue
		}

		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("parse model %s: %w", name, err)
		}
		for _, column := range stmt.Schema.DBNames {
			if !m.HasColumn(model, column) {
				missing = append(missing, fmt.Sprintf("column %s.%s", stmt.Schema.Table, column))
			}
		}
	}
	if m.HasTable(&models.Contract{}) {
		if !m.HasIndex(&models.Contract{}, ContractNumberIndex) {
			missing = append(missing, "index "+ContractNumberIndex)
		}
		if !m.HasIndex(&models.Contract{}, ActiveContractIndex) {
			missing = append(missing, "index "+ActiveContractIndex)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("schema is missing: %s", strings.Join(missing, ", "))
	}
	return nil
}
