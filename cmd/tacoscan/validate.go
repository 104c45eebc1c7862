package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/tacoscan/adapters/ethereum"
	"github.com/artpar/tacoscan/adapters/sqlite"
	"github.com/artpar/tacoscan/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the tacoscan configuration file.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Ledger RPC endpoint is reachable (optional)
  - Database is writable (optional)

Examples:
  tacoscan validate
  tacoscan validate --config /etc/tacoscan/config.yaml --check-ledger`,
	RunE: runValidate,
}

var (
	validateCheckLedger   bool
	validateCheckDatabase bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckLedger, "check-ledger", false, "check if the ledger RPC endpoint is reachable")
	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if database is writable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	// Check file exists
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Fprintf(out, "  %s Config file exists\n", checkMark)

	// Load and validate config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config syntax valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config syntax valid\n", checkMark)

	printSummary(out, cfg)

	// Optional: check ledger
	if validateCheckLedger {
		if head, err := checkLedgerReachable(cmd.Context(), cfg.Chain.RPCURL); err != nil {
			fmt.Fprintf(out, "  %s Ledger reachable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Ledger reachable (head block %d)\n", checkMark, head)
		}
	}

	// Optional: check database
	if validateCheckDatabase && cfg.Database.Driver == "sqlite" {
		if err := checkDatabaseWritable(cmd.Context(), cfg.Database.DSN); err != nil {
			fmt.Fprintf(out, "  %s Database writable\n", crossMark)
			fmt.Fprintf(out, "      Error: %v\n", err)
		} else {
			fmt.Fprintf(out, "  %s Database writable\n", checkMark)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func printSummary(out io.Writer, cfg *config.Config) {
	chain := cfg.Chain
	fmt.Fprintf(out, "  %s Ledger: %s (chain %d)\n", checkMark, chain.RPCURL, chain.ChainID)
	if chain.FeeModel != "" {
		fmt.Fprintf(out, "  %s Fee model: %s\n", checkMark, chain.FeeModel)
	} else {
		fmt.Fprintf(out, "  %s Fee model: resolved per ritual via %s\n", checkMark, chain.Coordinator)
	}
	if chain.PrivateKey != "" {
		fmt.Fprintf(out, "  %s Signer configured, payments enabled\n", checkMark)
	} else {
		fmt.Fprintf(out, "  %s No signer, read-only\n", crossMark)
	}
	fmt.Fprintf(out, "  %s Check mode: %s\n", checkMark, cfg.Dashboard.AuthorizationCheckMode)
	fmt.Fprintf(out, "  %s Database: %s (%s)\n", checkMark, cfg.Database.DSN, cfg.Database.Driver)
	fmt.Fprintf(out, "  %s Rituals opened at start: %d\n", checkMark, len(cfg.Dashboard.Rituals))
}

func checkLedgerReachable(ctx context.Context, rpcURL string) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := ethereum.Dial(ctx, rpcURL)
	if err != nil {
		return 0, err
	}
	defer client.Close()
	return client.HeadBlock(ctx)
}

func checkDatabaseWritable(ctx context.Context, dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate(ctx)
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
