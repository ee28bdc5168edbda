package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:          "pairpool-engine",
		Short:        "Constant-product liquidity pool engine",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with its HTTP and WebSocket surfaces",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	serveCmd.Flags().Uint("event-buffer", 256, "per-subscriber event buffer size")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN for the event sink (empty disables persistence)")
	serveCmd.Flags().Duration("snapshot-interval", 5*time.Second, "flush cadence of the Postgres sink")
	serveCmd.Flags().StringSlice("seed", nil, "initial gateway balances as asset:holder:amount (comma-separated)")

	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
