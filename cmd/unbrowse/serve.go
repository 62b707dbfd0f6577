package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/unbrowse/unbrowse/internal/service"
)

// shutdownGrace bounds the drain of in-flight requests on SIGTERM.
const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the local control service",
		Long: `Start the HTTP control service on 127.0.0.1 and the background token
refresh scheduler. The service owns the skill store; a pid lock in the data
dir keeps two instances from sharing it. Runs until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			defer eng.close()
			if err := ensureTosAccepted(eng.cfg, true); err != nil {
				return err
			}

			srv := service.New(eng.cfg, eng.store, eng.resolver,
				service.WithCapture(eng.captures),
				service.WithCredentials(eng.creds),
			)

			ctx := cmd.Context()
			go eng.scheduler.Run(ctx)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case <-ctx.Done():
				slog.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				return err
			}
		},
	}
}
