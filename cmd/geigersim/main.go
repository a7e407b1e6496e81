package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "geigersim",
	Short: "Simulated BLE radiation sensor",
	Long: `Bluetooth Low Energy peripheral that simulates a Geiger counter:

- Advertises a radiation service and the standard battery service
- Streams radiation readings to subscribed centrals
- Serves battery level reads and standby/on commands
- Runs the same peripheral over an in-memory radio with scripted centrals

Use run for a real adapter, simulate for the in-memory radio, and profile
to inspect the published GATT topology.`,
	Version: formatVersion(version),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Ctrl+C is a normal exit
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SetVersionTemplate(fmt.Sprintf("geigersim {{.Version}} (commit %s, built %s)\n", commit, date))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(profileCmd)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/geigersim/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Shorthand for --log-level debug")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored event output")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")
}
