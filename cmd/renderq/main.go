package main

import (
	"os"

	"github.com/posefactory/renderq/internal/common"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(common.ExitCode(err))
	}
}
