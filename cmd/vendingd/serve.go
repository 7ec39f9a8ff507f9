package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apphttp "vending-dispatch/internal/http"
	"vending-dispatch/internal/modules/dispense"
	"vending-dispatch/internal/modules/machines"
	"vending-dispatch/internal/modules/payments"
	"vending-dispatch/pkg/payment"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the offline sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.close()

			registry := machines.NewService(st.machines, logger, cfg.OfflineAfter)
			deps := apphttp.Deps{
				Logger:    logger,
				Machines:  registry,
				Dispense:  dispense.NewService(st.dispense, registry, logger),
				Payments:  payments.NewService(st.payments, logger),
				JWTSecret: cfg.JWTSecret,
				AckGrace:  cfg.AckGrace,
			}
			if cfg.StripeWebhookSecret != "" {
				deps.Verifier = payment.NewStripeVerifier(cfg.StripeWebhookSecret)
			}
			e := apphttp.NewRouter(deps)

			go machines.NewSweeper(registry, cfg.SweepInterval, logger).Run(ctx)

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server starting", "port", cfg.ServerPort, "store", cfg.StoreDriver)
				if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	}
}
