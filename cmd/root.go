// Package cmd implements the stationmind command line interface.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/stationmind/stationmind/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "stationmind",
	Short: "Conversational assistant for charging-station fleet operations",
	Long: `stationmind answers fleet operations questions in conversation:
business queries are routed to backend tools, documentation questions
are answered from the indexed knowledge base, and everything else is
handled as small talk.

Running stationmind without a subcommand starts an interactive chat.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newLogger builds the process logger honoring --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := log.NewWithWriter(os.Stderr, log.Config{Level: level})
	slog.SetDefault(logger)
	return logger
}
