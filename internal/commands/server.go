package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"evalgo.org/dockyard/internal/api"
	"evalgo.org/dockyard/internal/log"
	"evalgo.org/dockyard/internal/orchestration"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the HTTP API server.

When sync.interval is set, every enabled host is refreshed in the
background so container metadata follows the engines even without
API traffic.`,
	RunE: runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := log.WithComponent("server")

	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to release resources")
		}
	}()

	// Create API server
	server := api.New(cfg, rt.store, rt.manager, log.WithComponent("api"))

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
	defer stop()

	// Background refresh of every enabled host
	refresher := orchestration.NewRefresher(rt.manager, cfg.Sync.Interval, log.WithComponent("sync"))
	go refresher.Run(ctx)

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")

		// Create shutdown context with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return nil

	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}
