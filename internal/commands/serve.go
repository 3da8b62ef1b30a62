package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/beesaferoot/leasekeeper/internal/app"
)

func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the contract HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
					a.Cfg.HTTPAddr = addr
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return a.Serve(ctx)
			})
		},
	}
	cmd.Flags().String("addr", "", "Listen address, overrides HTTP_ADDR")
	return cmd
}
