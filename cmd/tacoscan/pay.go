package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/artpar/tacoscan/app"
	"github.com/artpar/tacoscan/domain/subscription"
)

var (
	paySlots string
	payNext  bool
)

var payCmd = &cobra.Command{
	Use:   "pay <ritual>",
	Short: "Pay for encryptor slots",
	Long: `Approve the fee token allowance and pay the fee model.

Without --next the slots are added to the current period. With --next the
next period's subscription is paid, base fee included.

Requires chain.private_key (or TACOSCAN_PRIVATE_KEY).

Examples:
  tacoscan pay 7 --slots 10
  tacoscan pay 7 --slots 10 --next`,
	Args: cobra.ExactArgs(1),
	RunE: runPay,
}

func init() {
	rootCmd.AddCommand(payCmd)

	payCmd.Flags().StringVar(&paySlots, "slots", "", "number of encryptor slots (required)")
	payCmd.Flags().BoolVar(&payNext, "next", false, "pay the next period's subscription")
	_ = payCmd.MarkFlagRequired("slots")
}

func runPay(cmd *cobra.Command, args []string) error {
	slots, err := subscription.ParseSlots(paySlots)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, sess, err := openRitual(ctx, args[0], cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Shutdown()

	result, err := a.Payments.Pay(ctx, sess, app.PaymentRequest{Slots: slots, NextPeriod: payNext})
	out := cmd.OutOrStdout()
	if result.Approve.TxHash != (common.Hash{}) {
		fmt.Fprintf(out, "%s approve  %s\n", checkMark, result.Approve.TxHash.Hex())
	}
	if err != nil {
		fmt.Fprintf(out, "%s payment failed\n", crossMark)
		return err
	}

	rec := result.Record
	fmt.Fprintf(out, "%s pay      %s\n", checkMark, result.Pay.TxHash.Hex())
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Payment %s\n", rec.ID)
	fmt.Fprintf(out, "  Kind:   %s\n", rec.Kind)
	fmt.Fprintf(out, "  Period: %s\n", orDash(rec.Period))
	fmt.Fprintf(out, "  Slots:  %s\n", orDash(rec.Slots))
	fmt.Fprintf(out, "  Total:  %s\n", subscription.FormatFees(rec.Total))
	return nil
}
