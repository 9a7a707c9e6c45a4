package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iammorganparry/clive/apps/recall/internal/mcp"
)

func newMCPCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the memory tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(cmd)
			a, err := newApp(cmd, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a.start(ctx, true)

			logger.Info("recall mcp server starting", "storage", a.cfg.StorageMode, "index", a.cfg.IndexBackend)
			err = mcp.Serve(ctx, mcp.NewServer(a.svc, version), os.Stdin, os.Stdout, logger)
			if ctx.Err() != nil {
				err = nil
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			a.close(shutdownCtx)
			return err
		},
	}
}
