package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/beesaferoot/leasekeeper/migration/driver"
)

func DownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Revert the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(_ *gorm.DB, m *driver.Migrator) error {
				reverted, err := m.Down(cmd.Context())
				if errors.Is(err, driver.ErrNoMigrationsApplied) {
					fmt.Fprintln(cmd.OutOrStdout(), "No migrations to revert.")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Successfully reverted migration: %s\n", reverted.Name)
				return nil
			})
		},
	}
}
