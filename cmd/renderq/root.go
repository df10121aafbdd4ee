package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/posefactory/renderq/internal/common"
	"github.com/posefactory/renderq/internal/dispatcher"
	"github.com/posefactory/renderq/internal/store"
)

var (
	cfgFile string

	// Global state shared by the subcommands, initialized by the root
	// pre-run.
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "renderq",
	Short: "Dispatch render jobs to GPU workers through an object store",
	Long: `RenderQ submits render jobs to a fleet of GPU workers using an
S3-compatible object store as the only shared surface: jobs queue as
manifests under jobs/pending/, workers claim and execute them, and
results land under results/<id>/.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Startup sequence: config (defaults -> file -> env -> flags),
		// then logger.
		if cfgFile == "" {
			if _, err := os.Stat("renderq.toml"); err == nil {
				cfgFile = "renderq.toml"
			}
		}

		var err error
		config, err = common.LoadFromFile(cfgFile)
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		logger = common.InitLogger(config)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "configuration file path")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(waitCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(reapCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// newService builds the dispatcher over the configured store.
func newService(ctx context.Context) (*dispatcher.Service, error) {
	st, err := store.NewS3Store(ctx, config.Store, logger)
	if err != nil {
		return nil, err
	}
	return dispatcher.NewService(st, config, logger), nil
}
