package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/posefactory/renderq/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a job's status, or all local jobs",
	Long: `Derives job status from store contents: results present means
completed, a processing manifest means a worker has it, a pending
manifest means it is queued. Without --id, lists every locally
recorded job with its probed status.`,
	RunE: runStatus,
}

var statusID string

func init() {
	statusCmd.Flags().StringVar(&statusID, "id", "", "job id to query")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := newService(ctx)
	if err != nil {
		return err
	}

	if statusID != "" {
		status, err := service.Status(ctx, statusID)
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	}

	manifests, err := service.List(ctx)
	if err != nil {
		return err
	}
	if len(manifests) == 0 {
		fmt.Println("no local job records")
		return nil
	}

	fmt.Printf("%-40s %-10s %-20s %s\n", "JOB ID", "KIND", "CREATED", "STATUS")
	for _, m := range manifests {
		status, err := service.Status(ctx, m.JobID)
		if err != nil {
			status = models.StatusUnknown
		}
		fmt.Printf("%-40s %-10s %-20s %s\n", m.JobID, m.JobType, m.CreatedAt, status)
	}
	return nil
}
