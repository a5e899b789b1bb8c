package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "likegrab",
	Short: "Download media from liked posts into a deduplicated local collection",
	Long: `likegrab turns a batch of liked-post records into downloaded media files
plus a manifest describing provenance (author, date, caption, source).

Records that only carry an item identifier are resolved through a cascade of
backends: the free internal API surface first, the official paid API second,
and an authenticated gallery-dl scrape as the last resort. Every strategy is
optional; missing credentials skip a stage instead of failing the run.

Re-running against the same staging directory is safe: media already on disk
is recorded in the manifest without being fetched again.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./likegrab.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`likegrab {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
