package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/beesaferoot/leasekeeper/internal/commands"
	migrate "github.com/beesaferoot/leasekeeper/migration/commands"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "leasekeeper",
		Short:         "Contract lifecycle engine for apartment complexes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		migrate.MigrateCmd(),
		commands.ContractCmd(),
		commands.ServeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
