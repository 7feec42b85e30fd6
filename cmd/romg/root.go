// SPDX-License-Identifier: EPL-2.0

// Package cmd contains all CLI commands for romg.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"romg-cli/internal/config"
	"romg-cli/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables verbose output
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string

	// cfg is the configuration resolved by initRootConfig. Never nil after
	// initialization; falls back to defaults when loading fails.
	cfg = config.DefaultConfig()

	// logger is the shared structured logger for all commands.
	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
	})

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "romg",
		Short: "Compose and validate ROMG update bundles",
		Long: TitleStyle.Render("romg") + SubtitleStyle.Render(" - Compose and validate ROMG update bundles") + `

romg assembles a deployable update bundle from a base archive, module
archives, and overlay archives. Before anything is unpacked it validates
the flat dependency graph the module descriptors declare, so an
incoherent bundle is rejected while the fix is still cheap.

` + SubtitleStyle.Render("Examples:") + `
  romg compose -n field-kit -V 2.1.0 -b base.tgz -m mod-a.tgz mod-b.tgz
  romg checkdeps -b base.tgz mod-a.tgz mod-b.tgz
  romg pack -m ./my-module --version 1.4.0`,
	}
)

func init() {
	cobra.OnInitialize(initRootConfig)

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/romg/config.cue)")

	// Add subcommands
	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(checkdepsCmd)
	rootCmd.AddCommand(packCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Use fang.Execute for enhanced Cobra styling
	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}

// initRootConfig reads in the config file if present.
func initRootConfig() {
	loaded, err := config.NewProvider().Load(context.Background(), config.LoadOptions{
		ConfigFilePath: cfgFile,
	})
	if err != nil {
		// Always surface config loading errors to the user
		printIssueCard(issue.ConfigLoadFailedId)
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, verbose))
		return
	}
	cfg = loaded

	// Apply verbose from config if not set via flag
	if !verbose {
		verbose = cfg.UI.Verbose
	}
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
}

// printIssueCard renders the catalog card for the issue to stderr, using the
// configured color scheme.
func printIssueCard(id issue.Id) {
	rendered, err := issue.Get(id).Render(string(cfg.UI.ColorScheme))
	if err != nil {
		return
	}
	fmt.Fprintln(os.Stderr, rendered)
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}
