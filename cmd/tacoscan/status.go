package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/artpar/tacoscan/domain/dashboard"
	"github.com/artpar/tacoscan/domain/subscription"
)

var statusSlots string

var statusCmd = &cobra.Command{
	Use:   "status <ritual>",
	Short: "Show the subscription of a ritual",
	Long: `Read the subscription terms and billing of a ritual from the ledger
and print its status, current and next period, and fees.

Examples:
  tacoscan status 7
  tacoscan status 7 --slots 25`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusSlots, "slots", "", "estimate fees for this many encryptor slots")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, sess, err := openRitual(ctx, args[0], cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Shutdown()

	view := a.Dashboard.View(sess)
	if statusSlots != "" {
		slots, err := subscription.ParseSlots(statusSlots)
		if err != nil {
			return err
		}
		if view, err = a.Dashboard.EstimateFees(ctx, sess, slots); err != nil {
			return err
		}
	}

	printView(cmd.OutOrStdout(), sess.Key(), view)
	return nil
}

func printView(out io.Writer, ritual string, v dashboard.View) {
	fmt.Fprintf(out, "Ritual %s\n", ritual)
	if v.Error != "" {
		fmt.Fprintf(out, "  %s last refresh failed: %s\n", crossMark, v.Error)
	}
	if v.WriteError != "" {
		fmt.Fprintf(out, "  %s last write failed: %s\n", crossMark, v.WriteError)
	}
	if !v.Known {
		fmt.Fprintln(out, "  Subscription terms unavailable")
		return
	}

	fmt.Fprintf(out, "  Status:        %s %s", v.Status.State.Indicator(), v.Status.State.Label())
	if v.StatusLabel != "" {
		fmt.Fprintf(out, " (%s)", v.StatusLabel)
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Subscribed:    %s\n", v.SubscriptionStart)
	fmt.Fprintf(out, "  Period:        %s (%s to %s)\n", orDash(v.CurrentPeriod), v.PeriodStartLabel, v.PeriodEndLabel)
	if v.PeriodTimeLeft != nil {
		if label, ok := subscription.FormatDuration(v.PeriodTimeLeft); ok {
			fmt.Fprintf(out, "  Period left:   %s\n", label)
		}
	}

	fmt.Fprintln(out)
	printBilling(out, "Current period", v.Current)
	printBilling(out, "Next period", v.Next)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Fees:")
	fmt.Fprintf(out, "  Base fees:     %s\n", v.Fees.NextBaseFees)
	if v.SlotQuery != nil {
		fmt.Fprintf(out, "  Slot fees:     %s (%s slots)\n", v.Fees.SlotFees, v.SlotQuery)
	}
	fmt.Fprintf(out, "  Next total:    %s\n", v.Fees.NextTotal)

	if len(v.Authorized) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Authorized encryptors:")
		for _, addr := range v.Authorized {
			fmt.Fprintf(out, "  %s %s\n", checkMark, addr.Hex())
		}
	}
}

func printBilling(out io.Writer, title string, b subscription.PeriodBilling) {
	fmt.Fprintf(out, "%s %s:\n", title, orDash(b.Number))
	fmt.Fprintf(out, "  Paid:          %s\n", yesNo(b.Paid))
	fmt.Fprintf(out, "  Slots:         %s paid, %s used, %s remaining\n", orDash(b.PaidSlots), orDash(b.UsedSlots), orDash(b.RemainingSlots))
	if b.Payable {
		fmt.Fprintln(out, "  Payable:       yes")
	}
}
