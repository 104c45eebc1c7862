package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/artpar/tacoscan/bootstrap"
	"github.com/artpar/tacoscan/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	Long: `Start the tacoscan dashboard API.

The server will:
  - Load configuration from tacoscan.yaml (or --config)
  - Or load configuration from TACOSCAN_* environment variables
  - Connect to the ledger RPC endpoint
  - Open the rituals listed in dashboard.rituals and keep them refreshed
  - Journal payment attempts in the database

Environment variables (for Docker deployments):
  TACOSCAN_RPC_URL          - Ledger RPC endpoint (required)
  TACOSCAN_FEE_MODEL        - Fee model contract address
  TACOSCAN_COORDINATOR      - Coordinator contract address
  TACOSCAN_PRIVATE_KEY      - Signing key, enables payments
  TACOSCAN_DATABASE_DSN     - Database path (default: tacoscan.db)
  TACOSCAN_LOG_LEVEL        - Log level: debug, info, warn, error

Examples:
  tacoscan serve
  tacoscan serve --config /etc/tacoscan/config.yaml
  tacoscan serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	if !hasConfigFile && !config.HasEnvConfig() {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "No configuration found.")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Option 1: Create %s\n", cfgFile)
		fmt.Fprintln(out, "Option 2: Set TACOSCAN_RPC_URL and TACOSCAN_FEE_MODEL environment variables")
		return nil
	}

	opts := bootstrap.Options{Version: version}
	if hasConfigFile && hotReload {
		// Hot reload only works with config file
		holder, err := config.NewHolder(cfgFile, zerolog.New(os.Stderr).With().Timestamp().Logger())
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		opts.Holder = holder
	} else {
		cfg, err := config.LoadWithFallback(cfgFile)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		opts.Config = cfg
	}

	app, err := bootstrap.New(context.Background(), opts)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
