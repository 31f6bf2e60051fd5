package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	config "github.com/anjiri1684/transport_portal/configs"
	"github.com/anjiri1684/transport_portal/database"
	"github.com/anjiri1684/transport_portal/payments"
	"github.com/anjiri1684/transport_portal/services"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile stale pending payments against the gateway once",
		Long: `Loads the server configuration from the environment (and .env), connects
to the payment database and runs the stale payment sweep a single time.
Transition listeners (Kafka, Redis, websocket) are not attached.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl <= 0 {
				ttl = cfg.PendingPaymentTTL
			}

			database.ConnectDB(cfg.DBDriver, cfg.DatabaseURL)
			store := database.NewPaymentStore(database.DB)
			gateway := payments.NewRazorpayClient(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.GatewayTimeout)
			engine := services.NewReconciliationService(store, gateway, cfg.RazorpayKeySecret, cfg.GatewayTimeout)
			engine.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil)))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			if recordID, _ := cmd.Flags().GetString("record"); recordID != "" {
				id, err := uuid.Parse(recordID)
				if err != nil {
					return fmt.Errorf("invalid --record: %w", err)
				}
				res, err := engine.SweepRecord(cmd.Context(), id, ttl)
				if err != nil {
					return err
				}
				return enc.Encode(res)
			}

			report, err := engine.Sweep(cmd.Context(), ttl)
			if err != nil {
				return err
			}
			return enc.Encode(report)
		},
	}

	cmd.Flags().String("record", "", "Reconcile only this payment record id")
	cmd.Flags().Duration("ttl", 0, "Minimum age of pending payments (defaults to PENDING_PAYMENT_TTL)")
	return cmd
}
