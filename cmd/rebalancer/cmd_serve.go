package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/rebalancer/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the API and run the scheduled rebalance",
	Long: `Start the HTTP API and the cron scheduler, like the server binary, and
block until interrupted.

Examples:
  rebalancer serve --port 8080 --log-level info`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default: GO_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	container, log, err := setup()
	if err != nil {
		return err
	}
	defer container.Close()

	port := container.Config.Port
	if servePort > 0 {
		port = servePort
	}

	srv := server.New(server.Config{
		Log:       log,
		Port:      port,
		DevMode:   container.Config.DevMode,
		Container: container,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	container.Scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err = <-errCh:
	}

	container.Scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := srv.Shutdown(ctx); shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("Server forced to shutdown")
	}
	return err
}
