package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/iammorganparry/clive/apps/recall/internal/api"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory API over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger(cmd)
			a, err := newApp(cmd, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a.start(ctx, true)

			addr := fmt.Sprintf(":%d", a.cfg.Port)
			srv := &http.Server{
				Addr:         addr,
				Handler:      api.NewRouter(a.svc, a.health, a.cfg.APIKey, logger),
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("recall server starting", "addr", addr, "storage", a.cfg.StorageMode, "index", a.cfg.IndexBackend)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err = <-errCh:
			case <-ctx.Done():
				logger.Info("shutting down...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if serr := srv.Shutdown(shutdownCtx); serr != nil {
				logger.Error("shutdown error", "error", serr)
			}
			a.close(shutdownCtx)

			logger.Info("server stopped")
			return err
		},
	}
}
