package main

import (
	"fmt"

	"vending-dispatch/internal/config"
	"vending-dispatch/internal/store/postgres"
	"vending-dispatch/internal/store/sqlite"

	"github.com/spf13/cobra"
)

func migrateCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the machines, products and orders tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}

			switch cfg.StoreDriver {
			case config.DriverPostgres:
				pool, err := postgres.Open(cmd.Context(), cfg.DatabaseURL)
				if err != nil {
					return err
				}
				defer pool.Close()
				if err := postgres.Migrate(cmd.Context(), pool); err != nil {
					return err
				}
			case config.DriverSQLite:
				// Open applies the schema.
				db, err := sqlite.Open(cfg.SQLitePath)
				if err != nil {
					return err
				}
				if err := db.Close(); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
			}

			logger.Info("schema applied", "store", cfg.StoreDriver)
			return nil
		},
	}
}
