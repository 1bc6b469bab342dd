// Command pm is the thin CLI collaborator spec.md §6 describes: it loads
// typed input (index, specs, staged archives), drives the engine, and
// turns the typed error kinds of pkg/pmerrors into the exit codes of
// spec.md §6.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set via ldflags during build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "pm",
	Short: "pm - a source-building package manager for arm64 macOS",
	Long: `pm acquires sources, stages signed content-addressed archives, and
installs them atomically into a live prefix, such that any install,
upgrade, or removal either fully succeeds or is invisible to the user.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("pm version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("root", "/opt/pm", "engine root directory (store/state/slots/live)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(gcCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(listCmd)
}
