package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/beesaferoot/leasekeeper/migration/driver"
)

func StatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show status of all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(_ *gorm.DB, m *driver.Migrator) error {
				statuses, err := m.Status(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-16s  %-30s  %-8s\n", "Version", "Name", "Status")
				for _, st := range statuses {
					status := "Pending"
					if st.Applied {
						status = "Applied"
					}
					fmt.Fprintf(out, "%-16s  %-30s  %-8s\n", st.Version, st.Name, status)
				}
				return nil
			})
		},
	}
}
