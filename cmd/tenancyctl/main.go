package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/teresa-solution/tenancy-allocation-service/internal/config"
	"github.com/teresa-solution/tenancy-allocation-service/internal/monitoring"
)

func main() {
	cfg, err := config.Load()
	monitoring.SetupLogger(cfg.Log.Level, "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "tenancyctl",
		Short: "Operator tool for the tenancy allocation service",
	}

	rootCmd.AddCommand(
		migrateCmd(cfg),
		reconcileCmd(cfg),
		historyCmd(cfg),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
