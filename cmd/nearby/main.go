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

// newRootCmd builds the command tree; every call returns fresh flag state
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nearby",
		Short: "Detect smart glasses nearby over Bluetooth Low Energy",
		Long: `Passively listens to Bluetooth Low Energy advertisements and alerts when a
device looks like a pair of camera-equipped smart glasses:

- Matches manufacturer company identifiers (Meta, Snap)
- Matches advertised device names (Ray-Ban variants)
- Rate-limits alerts with a global cooldown
- Keeps a bounded activity log that can be exported as text and JSON

Detection is heuristic; expect both misses and false positives.`,
		Version:       formatVersion(version),
		SilenceErrors: true, // main() prints clean errors
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("nearby {{.Version}} (commit %s, built %s)\n", commit, date))

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newCompaniesCmd())

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	// Add -v as a short flag for --version
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error - exit silently
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
