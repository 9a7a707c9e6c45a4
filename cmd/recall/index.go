package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "index <path>...",
		Short: "Index source files as code files and snippets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd)
			a, err := newApp(cmd, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			a.start(ctx, false)
			defer a.close(ctx)

			for _, path := range args {
				resp, err := a.svc.IndexFile(ctx, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s (%s)\n", resp.Path, resp.Language)
			}
			if err := a.svc.Drain(ctx); err != nil {
				return fmt.Errorf("wait for indexing: %w", err)
			}
			stats := a.queue.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d task(s), %d failed\n", stats.Processed, stats.Failed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up after this long")
	return cmd
}
