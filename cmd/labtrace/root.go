package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/labtrace/labtrace/pkg/version"
)

// buildRootCmd assembles the command tree. Kept separate from main so tests
// can exercise it without touching os.Exit.
func buildRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:          "labtrace",
		Short:        "Lab report ingestion, analyte mapping, and conversational analysis",
		Version:      version.Full(),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if debug {
				level = slog.LevelDebug
			}
			handler := newLogHandler(os.Getenv("ENV"), level)
			slog.SetDefault(slog.New(handler))
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(buildServeCmd(), buildMigrateCmd())
	return root
}

// newLogHandler mirrors how the ambient structured-logging stack across
// this codebase splits dev/prod formatting: a readable text handler in
// dev, JSON in every other environment.
func newLogHandler(env string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if env == "dev" || env == "" {
		return slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.NewJSONHandler(os.Stderr, opts)
}
