package main

import (
	"encoding/json"
	"fmt"

	"vending-dispatch/internal/modules/dispense"
	"vending-dispatch/internal/modules/machines"
	"vending-dispatch/internal/modules/reconcile"

	"github.com/spf13/cobra"
)

func reconcileCmd(load loader) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Report dispensed orders no machine acknowledged",
		Long: "Lists online orders that were handed to a machine but never acknowledged\n" +
			"within ACK_GRACE, and mails the list when SES alerting is configured.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			st, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.close()

			registry := machines.NewService(st.machines, logger, cfg.OfflineAfter)
			source := dispense.NewService(st.dispense, registry, logger)

			var notifier reconcile.Notifier
			if cfg.AlertsEnabled() {
				ses, err := reconcile.NewSESNotifier(ctx, cfg.AWSRegion, cfg.AlertFromEmail, cfg.AlertToEmail)
				if err != nil {
					return err
				}
				notifier = ses
			}

			report, err := reconcile.NewService(source, notifier, cfg.AckGrace, logger).Run(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			_, err = fmt.Fprint(out, report.String())
			return err
		},
	}

	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "print the report as JSON")
	return cmd
}
