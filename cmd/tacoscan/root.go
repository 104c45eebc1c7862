package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tacoscan",
	Short: "Subscription dashboard for threshold-encryption DKG rituals",
	Long: `tacoscan tracks the subscription of a DKG ritual: its billing period,
paid and used encryptor slots, fees and the encryptor allow-list.

Quick start:
  tacoscan serve              # Start the dashboard API
  tacoscan status 7           # Show the subscription of ritual 7

Actions:
  tacoscan pay 7 --slots 10           # Pay for encryptor slots
  tacoscan encryptors check 7 0xabc   # Check allow-list membership
  tacoscan validate                   # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "tacoscan.yaml", "config file path")
}
