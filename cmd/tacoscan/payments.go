package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/artpar/tacoscan/app"
	"github.com/artpar/tacoscan/bootstrap"
	"github.com/artpar/tacoscan/config"
	"github.com/artpar/tacoscan/domain/subscription"
)

var paymentsLimit int

var paymentsCmd = &cobra.Command{
	Use:   "payments <ritual>",
	Short: "List journaled payment attempts of a ritual",
	Long: `List the payment attempts recorded in the local journal, newest first.

The journal records what this installation submitted. It is not a view of
ledger state; use 'tacoscan status' for that.

Examples:
  tacoscan payments 7
  tacoscan payments 7 --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runPayments,
}

func init() {
	rootCmd.AddCommand(paymentsCmd)

	paymentsCmd.Flags().IntVar(&paymentsLimit, "limit", 20, "maximum number of attempts to show")
}

func runPayments(cmd *cobra.Command, args []string) error {
	id, err := app.ParseRitualID(args[0])
	if err != nil {
		return err
	}
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	a, err := bootstrap.New(cmd.Context(), bootstrap.Options{Config: cfg, Version: version, LogOutput: cmd.ErrOrStderr()})
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}
	defer a.Shutdown()

	records, err := a.Payments.History(cmd.Context(), id, paymentsLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "No payment attempts recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tPERIOD\tSLOTS\tTOTAL\tOUTCOME\tCREATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Kind, orDash(r.Period), orDash(r.Slots),
			subscription.FormatFees(r.Total), r.Outcome, r.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}
