package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download a job's results",
	Long: `Mirrors results/<id>/ into <dest>/<id>/, overwriting on conflict.
Waits for the results listing to stabilize first, in case a worker is
still publishing; --force skips the wait and takes what exists now.`,
	RunE: runDownload,
}

var (
	downloadID    string
	downloadDest  string
	downloadForce bool
)

func init() {
	downloadCmd.Flags().StringVar(&downloadID, "id", "", "job id to download")
	downloadCmd.Flags().StringVar(&downloadDest, "dest", ".", "destination directory")
	downloadCmd.Flags().BoolVar(&downloadForce, "force", false, "download without waiting for a stable listing")
	downloadCmd.MarkFlagRequired("id")
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	service, err := newService(ctx)
	if err != nil {
		return err
	}

	target, err := service.Download(ctx, downloadID, downloadDest, downloadForce)
	if err != nil {
		return err
	}
	fmt.Println(target)
	return nil
}
