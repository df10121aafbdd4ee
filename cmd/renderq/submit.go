package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/posefactory/renderq/internal/common"
	"github.com/posefactory/renderq/internal/dispatcher"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a job to the queue",
	Long: `Submits a job: mirrors the local scripts tree to the store and
uploads the manifest to jobs/pending/. Returns the generated job id.
With --wait, polls until the job completes and downloads its results.`,
	RunE: runSubmit,
}

var (
	submitKind       string
	submitScript     string
	submitCharacters []string
	submitOutput     string
	submitParams     []string
	submitWait       bool
	submitDest       string
)

func init() {
	submitCmd.Flags().StringVar(&submitKind, "kind", "render", "job kind (render, character)")
	submitCmd.Flags().StringVar(&submitScript, "script", "", "script path relative to the scripts directory")
	submitCmd.Flags().StringSliceVar(&submitCharacters, "characters", nil, "character names (comma-separated)")
	submitCmd.Flags().StringVar(&submitOutput, "output", "", "output subdirectory name")
	submitCmd.Flags().StringArrayVar(&submitParams, "param", nil, "tool parameter override KEY=VAL (repeatable)")
	submitCmd.Flags().BoolVar(&submitWait, "wait", false, "wait for completion and download results")
	submitCmd.Flags().StringVar(&submitDest, "dest", ".", "download destination directory (with --wait)")
	submitCmd.MarkFlagRequired("script")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	overrides, err := parseOverrides(submitParams)
	if err != nil {
		return err
	}

	service, err := newService(ctx)
	if err != nil {
		return err
	}

	manifest, err := service.Submit(ctx, dispatcher.SubmitRequest{
		Kind:       submitKind,
		Script:     submitScript,
		Characters: submitCharacters,
		OutputDir:  submitOutput,
		Overrides:  overrides,
	})
	if err != nil {
		return err
	}
	fmt.Println(manifest.JobID)

	if !submitWait {
		return nil
	}

	if _, err := service.Wait(ctx, manifest.JobID, config.Dispatcher.WaitTimeoutDuration()); err != nil {
		return err
	}
	target, err := service.Download(ctx, manifest.JobID, submitDest, false)
	if err != nil {
		return err
	}
	fmt.Printf("results downloaded to %s\n", target)
	return nil
}

// parseOverrides turns repeated KEY=VAL flags into the manifest's
// overrides map.
func parseOverrides(params []string) (map[string]interface{}, error) {
	if len(params) == 0 {
		return nil, nil
	}
	overrides := make(map[string]interface{}, len(params))
	for _, p := range params {
		key, value, found := strings.Cut(p, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("%w: --param %q is not KEY=VAL", common.ErrValidation, p)
		}
		overrides[key] = value
	}
	return overrides, nil
}
