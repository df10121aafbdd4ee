package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/posefactory/renderq/internal/common"
	"github.com/posefactory/renderq/internal/store"
	"github.com/posefactory/renderq/internal/worker"
)

var (
	configFile  = flag.String("config", "", "configuration file path")
	showVersion = flag.Bool("version", false, "print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("RenderQ agent version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup sequence: config (defaults -> file -> env), logger, banner.
	path := *configFile
	if path == "" {
		if _, err := os.Stat("renderq.toml"); err == nil {
			path = "renderq.toml"
		}
	}

	config, err := common.LoadFromFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := common.InitLogger(config)
	common.PrintBanner("renderq-agent")

	if config.Worker.OpsQueue != "" {
		// Out-of-band setup messaging; surfaced for the operator, not
		// consumed by the agent itself.
		logger.Info().Str("ops_queue", config.Worker.OpsQueue).Msg("Ops queue configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewS3Store(ctx, config.Store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create store client")
		os.Exit(1)
	}

	agent, err := worker.NewAgent(st, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize worker agent")
		os.Exit(1)
	}

	if err := agent.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Worker agent stopped with error")
		os.Exit(1)
	}
}
