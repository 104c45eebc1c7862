package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/tacoscan/adapters/sqlite"
	"github.com/artpar/tacoscan/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup wizard",
	Long: `Initialize tacoscan with an interactive setup wizard.

This will:
  1. Ask for the ledger RPC endpoint and chain id
  2. Ask for the fee model and access controller addresses
  3. Create the configuration file
  4. Create and migrate the payment journal database

Examples:
  tacoscan init
  tacoscan init --non-interactive --rpc-url https://rpc-amoy.polygon.technology --fee-model 0x...`,
	RunE: runInit,
}

var (
	initRPCURL           string
	initChainID          int64
	initFeeModel         string
	initAccessController string
	initDatabase         string
	initNonInteractive   bool
	initForce            bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initRPCURL, "rpc-url", "", "ledger RPC endpoint")
	initCmd.Flags().Int64Var(&initChainID, "chain-id", 80002, "chain id used for signing")
	initCmd.Flags().StringVar(&initFeeModel, "fee-model", "", "fee model contract address")
	initCmd.Flags().StringVar(&initAccessController, "access-controller", "", "access controller contract address")
	initCmd.Flags().StringVar(&initDatabase, "database", "tacoscan.db", "database file path")
	initCmd.Flags().BoolVar(&initNonInteractive, "non-interactive", false, "run without prompts (requires --rpc-url and --fee-model)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())
	fmt.Fprintln(out, "Welcome to tacoscan!")
	fmt.Fprintln(out)

	// Check if config already exists
	if _, err := os.Stat(cfgFile); err == nil && !initForce {
		fmt.Fprintf(out, "Configuration file already exists: %s\n", cfgFile)
		if initNonInteractive || !confirm(out, reader, "Overwrite?") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	rpcURL := initRPCURL
	feeModel := initFeeModel
	accessController := initAccessController
	database := initDatabase
	if !initNonInteractive {
		if rpcURL == "" {
			rpcURL = prompt(out, reader, "Ledger RPC URL", "")
		}
		if feeModel == "" {
			feeModel = prompt(out, reader, "Fee model address", "")
		}
		if accessController == "" {
			accessController = prompt(out, reader, "Access controller address (optional)", "")
		}
		if initDatabase == "tacoscan.db" {
			database = prompt(out, reader, "Database location", "tacoscan.db")
		}
	}
	if rpcURL == "" {
		return fmt.Errorf("--rpc-url is required")
	}
	if feeModel == "" {
		return fmt.Errorf("--fee-model is required")
	}

	content := generateConfig(rpcURL, initChainID, feeModel, accessController, database)
	if err := os.WriteFile(cfgFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if _, err := config.Load(cfgFile); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}
	fmt.Fprintf(out, "\n%s Generated %s\n", checkMark, cfgFile)

	// Create database and run migrations
	db, err := sqlite.Open(database)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(cmd.Context()); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	fmt.Fprintf(out, "%s Created database %s\n", checkMark, database)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Set chain.private_key (or TACOSCAN_PRIVATE_KEY) to enable payments.")
	fmt.Fprintln(out, "Run 'tacoscan serve' to start the dashboard API.")
	return nil
}

func prompt(out io.Writer, reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "? %s [%s]: ", label, defaultVal)
	} else {
		fmt.Fprintf(out, "? %s: ", label)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func confirm(out io.Writer, reader *bufio.Reader, message string) bool {
	fmt.Fprintf(out, "? %s [y/N]: ", message)
	input, _ := reader.ReadString('\n')
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "y" || input == "yes"
}

func generateConfig(rpcURL string, chainID int64, feeModel, accessController, database string) string {
	return fmt.Sprintf(`# tacoscan configuration
# Generated by 'tacoscan init'

server:
  host: "0.0.0.0"
  port: 8080

chain:
  rpc_url: "%s"
  chain_id: %d
  fee_model: "%s"
  access_controller: "%s"
  # private_key: "${TACOSCAN_PRIVATE_KEY}"

ledger:
  reads_per_second: 20
  read_burst: 10
  write_timeout: 2m

dashboard:
  refresh_interval: 15s
  authorization_check_mode: representative
  rituals: []

database:
  driver: sqlite
  dsn: "%s"

logging:
  level: info
  format: console

metrics:
  enabled: true
`, rpcURL, chainID, feeModel, accessController, database)
}
