package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/beesaferoot/leasekeeper/migration/driver"
)

func UpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			out := cmd.OutOrStdout()

			return withMigrator(func(_ *gorm.DB, m *driver.Migrator) error {
				ctx := cmd.Context()
				if dryRun {
					pending, err := m.Pending(ctx)
					if err != nil {
						return fmt.Errorf("failed to get pending migrations: %w", err)
					}
					if len(pending) == 0 {
						fmt.Fprintln(out, "No pending migrations.")
						return nil
					}
					fmt.Fprintln(out, "Pending migrations:")
					for _, mr := range pending {
						fmt.Fprintf(out, "- %s (%s)\n", mr.Name, mr.Version)
					}
					return nil
				}

				applied, err := m.Up(ctx)
				for _, mr := range applied {
					fmt.Fprintf(out, "Successfully applied migration: %s (%s)\n", mr.Name, mr.Version)
				}
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(out, "No pending migrations.")
				}
				return nil
			})
		},
	}

	cmd.Flags().Bool("dry-run", false, "Show pending migrations without executing them")

	return cmd
}
