package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/petal-labs/behaveflow/cli"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "behaveflow",
	Short: "Behavior graph engine CLI",
	Long:  "behaveflow validates and executes behavior graphs: node graphs driven by lifecycle pulses.",
	// SilenceUsage prevents printing usage on every error
	SilenceUsage: true,
}

func init() {
	cli.AddPersistentFlags(rootCmd)

	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("behaveflow version %s\n", version))

	rootCmd.AddCommand(cli.NewRunCmd())
	rootCmd.AddCommand(cli.NewValidateCmd())
	rootCmd.AddCommand(cli.NewSpecsCmd())
	rootCmd.AddCommand(cli.NewEventsCmd())
}
