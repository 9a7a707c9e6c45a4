package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "recall",
		Short: "Persistent project memory for coding assistants",
		Long: `recall keeps conversation messages, active files, project knowledge,
episodes and indexed code in SQLite, and serves them back as a ranked
context snapshot.

Examples:
  recall mcp
  recall serve
  recall index ./internal/server.go
  recall maintain`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to a YAML config file (overrides RECALL_CONFIG)")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(),
		newMCPCmd(version),
		newMaintainCmd(),
		newIndexCmd(),
	)
	return root
}

// newLogger writes JSON logs to stderr so stdout stays free for the MCP
// transport.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// applyConfigFlag exports --config as RECALL_CONFIG before config.Load.
func applyConfigFlag(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil
	}
	return os.Setenv("RECALL_CONFIG", path)
}
