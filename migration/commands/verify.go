package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/beesaferoot/leasekeeper/migration"
	"github.com/beesaferoot/leasekeeper/migration/driver"
	"github.com/beesaferoot/leasekeeper/migration/schema"
)

func VerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Validate all migrations and check the live schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(db *gorm.DB, m *driver.Migrator) error {
				if err := migration.Validate(m.Migrations()); err != nil {
					return fmt.Errorf("validation failed: %w", err)
				}

				pending, err := m.Pending(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to get pending migrations: %w", err)
				}
				if len(pending) > 0 {
					return fmt.Errorf("%d migration(s) pending, run migrate up first", len(pending))
				}

				if err := schema.Verify(db); err != nil {
					return fmt.Errorf("schema check failed: %w", err)
				}

				fmt.Fprintln(cmd.OutOrStdout(), "All migrations are valid and the schema is up to date")
				return nil
			})
		},
	}
}
