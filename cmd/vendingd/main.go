// Command vendingd serves the vending dispatch API and runs operator jobs.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"vending-dispatch/internal/config"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	var envDir string

	rootCmd := &cobra.Command{
		Use:           "vendingd",
		Short:         "Offline-payment dispense coordinator for vending machines",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envDir, "env-dir", ".", "directory holding the .env file")

	load := func() (*config.Config, *slog.Logger, error) {
		cfg, err := config.LoadConfig(envDir)
		if err != nil {
			return nil, nil, err
		}
		return cfg, newLogger(cfg), nil
	}

	rootCmd.AddCommand(serveCmd(load))
	rootCmd.AddCommand(reconcileCmd(load))
	rootCmd.AddCommand(migrateCmd(load))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type loader func() (*config.Config, *slog.Logger, error)

func newLogger(cfg *config.Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return logger
}
