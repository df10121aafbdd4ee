package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List locally recorded jobs",
	Long:  `Lists the jobs recorded on this workstation, newest first. Local only; use status to probe the store.`,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := newService(ctx)
	if err != nil {
		return err
	}

	manifests, err := service.List(ctx)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		fmt.Println("no local job records")
		return nil
	}

	fmt.Printf("%-40s %-10s %s\n", "JOB ID", "KIND", "CREATED")
	for _, m := range manifests {
		fmt.Printf("%-40s %-10s %s\n", m.JobID, m.JobType, m.CreatedAt)
	}
	return nil
}
