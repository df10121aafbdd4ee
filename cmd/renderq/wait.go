package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for a job to complete",
	Long: `Polls the job's status until it completes or the timeout elapses.
Cancelling the wait does not cancel the worker-side job.`,
	RunE: runWait,
}

var (
	waitID      string
	waitTimeout time.Duration
)

func init() {
	waitCmd.Flags().StringVar(&waitID, "id", "", "job id to wait for")
	waitCmd.Flags().DurationVar(&waitTimeout, "timeout", 0, "wait bound (default from config)")
	waitCmd.MarkFlagRequired("id")
}

func runWait(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := newService(ctx)
	if err != nil {
		return err
	}

	status, err := service.Wait(ctx, waitID, waitTimeout)
	if err != nil {
		return err
	}
	fmt.Println(status)
	return nil
}
