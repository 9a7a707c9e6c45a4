package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newMaintainCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Remove orphaned and duplicate fingerprints, then resync the index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(cmd)
			a, err := newApp(cmd, logger)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			a.start(ctx, false)
			defer a.close(ctx)

			report, err := a.svc.RunMaintenance(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "give up after this long")
	return cmd
}
