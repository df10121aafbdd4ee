package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Move stale processing manifests back to pending",
	Long: `Moves jobs/processing/ manifests older than the given age back to
jobs/pending/ so a worker retries them. Deliberately manual: a job
that poisons workers would otherwise be retried forever.`,
	RunE: runReap,
}

var reapOlderThan time.Duration

func init() {
	reapCmd.Flags().DurationVar(&reapOlderThan, "older-than", time.Hour, "minimum claim age to reap")
}

func runReap(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := newService(ctx)
	if err != nil {
		return err
	}

	moved, err := service.Reap(ctx, reapOlderThan)
	if err != nil {
		return err
	}
	if len(moved) == 0 {
		fmt.Println("no stale claims")
		return nil
	}
	for _, id := range moved {
		fmt.Println(id)
	}
	return nil
}
