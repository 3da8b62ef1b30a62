package commands

import "github.com/spf13/cobra"

// MigrateCmd groups the schema migration commands.
func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the leasekeeper database schema",
	}
	cmd.AddCommand(
		UpCmd(),
		DownCmd(),
		StatusCmd(),
		HistoryCmd(),
		VerifyCmd(),
	)
	return cmd
}
