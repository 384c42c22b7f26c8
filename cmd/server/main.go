// Command server runs the scan2target service: HTTP API, background worker,
// device health monitor and retention cleanup.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "scan2target",
	Short:        "Document capture and delivery service for network scanners",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run database migrations and start the service",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "run database migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMigrate(cmd.Context())
	},
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("scan2target failed", "error", err)
		os.Exit(1)
	}
}
