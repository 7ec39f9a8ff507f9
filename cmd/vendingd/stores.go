package main

import (
	"context"
	"fmt"

	"vending-dispatch/internal/config"
	"vending-dispatch/internal/modules/dispense"
	"vending-dispatch/internal/modules/machines"
	"vending-dispatch/internal/modules/payments"
	"vending-dispatch/internal/store/postgres"
	"vending-dispatch/internal/store/sqlite"
)

// stores are the repositories of the configured driver.
type stores struct {
	machines machines.RepositoryInterface
	dispense dispense.RepositoryInterface
	payments payments.RepositoryInterface
	close    func()
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &stores{
			machines: machines.NewRepository(pool),
			dispense: dispense.NewRepository(pool),
			payments: payments.NewRepository(pool),
			close:    pool.Close,
		}, nil
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &stores{
			machines: db.Machines(),
			dispense: db.Dispense(),
			payments: db.Payments(),
			close:    func() { _ = db.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
