package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/posefactory/renderq/internal/common"
	"github.com/posefactory/renderq/internal/handlers"
	"github.com/posefactory/renderq/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatcher HTTP API",
	Long:  `Starts the HTTP API exposing the dispatcher operations: POST /jobs, GET /jobs, GET /jobs/{id}, POST /jobs/{id}/download.`,
	RunE:  runServe,
}

var (
	servePort int
	serveHost string
)

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "server port (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "server host (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	common.ApplyFlagOverrides(config, servePort, serveHost)
	common.PrintBanner("renderq")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := newService(ctx)
	if err != nil {
		return err
	}

	jobHandler := handlers.NewJobHandler(service, logger)
	srv := server.New(config, logger, jobHandler)

	errCh := make(chan error, 1)
	common.SafeGo(logger, "http-server", func() {
		errCh <- srv.Start()
	})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
