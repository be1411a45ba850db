package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "billingctl",
		Short:         "Admin tooling for the hotspot billing service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().Bool("dev", false, "developer mode (allows running without database.url)")

	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(normalizeCmd())
	rootCmd.AddCommand(revenueCmd())
	rootCmd.AddCommand(reconcileFileCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
