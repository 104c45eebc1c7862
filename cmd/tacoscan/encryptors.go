package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artpar/tacoscan/app"
)

var encryptorsCmd = &cobra.Command{
	Use:   "encryptors",
	Short: "Check and update the encryptor allow-list",
	Long: `Manage which addresses may encrypt under a ritual.

Addresses are given as one comma-separated list or as separate arguments.

Examples:
  tacoscan encryptors check 7 0xabc...,0xdef...
  tacoscan encryptors authorize 7 0xabc... 0xdef...
  tacoscan encryptors deauthorize 7 0xabc...`,
}

var encryptorsCheckCmd = &cobra.Command{
	Use:   "check <ritual> <addresses>...",
	Short: "Check whether addresses are authorized",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runEncryptorsCheck,
}

var encryptorsAuthorizeCmd = &cobra.Command{
	Use:   "authorize <ritual> <addresses>...",
	Short: "Add addresses to the allow-list",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runEncryptorsUpdate(app.ActionAuthorize),
}

var encryptorsDeauthorizeCmd = &cobra.Command{
	Use:   "deauthorize <ritual> <addresses>...",
	Short: "Remove addresses from the allow-list",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runEncryptorsUpdate(app.ActionDeauthorize),
}

func init() {
	rootCmd.AddCommand(encryptorsCmd)
	encryptorsCmd.AddCommand(encryptorsCheckCmd)
	encryptorsCmd.AddCommand(encryptorsAuthorizeCmd)
	encryptorsCmd.AddCommand(encryptorsDeauthorizeCmd)
}

func runEncryptorsCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, sess, err := openRitual(ctx, args[0], cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Shutdown()

	results, err := a.Encryptors.Check(ctx, sess, strings.Join(args[1:], ","))
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Mode: %s\n", a.Encryptors.Mode())
	for _, r := range results {
		mark := crossMark
		if r.Authorized {
			mark = checkMark
		}
		fmt.Fprintf(out, "  %s %s\n", mark, r.Address.Hex())
	}
	return err
}

func runEncryptorsUpdate(action app.EncryptorAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, sess, err := openRitual(ctx, args[0], cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Shutdown()

		receipt, addrs, err := a.Encryptors.Update(ctx, sess, strings.Join(args[1:], ","), action)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s %d address(es) in %s\n", checkMark, action, len(addrs), receipt.TxHash.Hex())
		for _, addr := range addrs {
			fmt.Fprintf(out, "  %s\n", addr.Hex())
		}
		return nil
	}
}
