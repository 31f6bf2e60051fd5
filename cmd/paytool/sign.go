package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/anjiri1684/transport_portal/payments"
	"github.com/spf13/cobra"
)

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Compute gateway signatures for manual testing",
	}
	cmd.AddCommand(signClientCmd())
	cmd.AddCommand(signWebhookCmd())
	return cmd
}

func signClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Sign order_id|payment_id the way the checkout callback does",
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, _ := cmd.Flags().GetString("order")
			paymentID, _ := cmd.Flags().GetString("payment")
			secret, _ := cmd.Flags().GetString("secret")
			if secret == "" {
				return errors.New("secret not provided and RAZORPAY_KEY_SECRET not set")
			}
			payload := payments.ClientPayload(orderID, paymentID)
			if payload == nil {
				return errors.New("both --order and --payment are required")
			}
			fmt.Fprintln(cmd.OutOrStdout(), payments.Sign(payload, secret))
			return nil
		},
	}

	cmd.Flags().String("order", "", "Gateway order id")
	cmd.Flags().String("payment", "", "Gateway payment id")
	cmd.Flags().String("secret", os.Getenv("RAZORPAY_KEY_SECRET"), "Gateway key secret")
	return cmd
}

func signWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook [file]",
		Short: "Sign a raw webhook body read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			if secret == "" {
				return errors.New("secret not provided and RAZORPAY_WEBHOOK_SECRET not set")
			}

			var body []byte
			var err error
			if len(args) == 1 {
				body, err = os.ReadFile(args[0])
			} else {
				body, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), payments.Sign(body, secret))
			return nil
		},
	}

	cmd.Flags().String("secret", os.Getenv("RAZORPAY_WEBHOOK_SECRET"), "Webhook secret")
	return cmd
}
