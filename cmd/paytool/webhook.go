package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/anjiri1684/transport_portal/payments"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type webhookOptions struct {
	url       string
	secret    string
	header    string
	eventType string
	orderID   string
	paymentID string
	amount    int64
	currency  string
	status    string
	dryRun    bool
}

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Send signed gateway webhooks to a running server",
	}
	cmd.AddCommand(webhookSendCmd())
	return cmd
}

func webhookSendCmd() *cobra.Command {
	opts := &webhookOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Build, sign and POST a payment webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWebhookSend(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "http://localhost:8080/api/v1/payments/webhook", "Webhook URL")
	cmd.Flags().StringVar(&opts.secret, "secret", os.Getenv("RAZORPAY_WEBHOOK_SECRET"), "Webhook secret")
	cmd.Flags().StringVar(&opts.header, "header", "X-Razorpay-Signature", "Signature header name")
	cmd.Flags().StringVar(&opts.eventType, "type", payments.EventPaymentCaptured, "Event type (payment.captured, payment.failed, order.paid)")
	cmd.Flags().StringVar(&opts.orderID, "order", "", "Gateway order id")
	cmd.Flags().StringVar(&opts.paymentID, "payment", "pay_"+uuid.NewString()[:12], "Gateway payment id")
	cmd.Flags().Int64Var(&opts.amount, "amount", 0, "Amount in minor units")
	cmd.Flags().StringVar(&opts.currency, "currency", "INR", "Currency")
	cmd.Flags().StringVar(&opts.status, "status", "", "Payment status (defaults from the event type)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Only print signature and body, don't send")
	return cmd
}

func buildWebhookBody(opts *webhookOptions) ([]byte, error) {
	status := opts.status
	if status == "" {
		status = payments.GatewayStatusCaptured
		if opts.eventType == payments.EventPaymentFailed {
			status = payments.GatewayStatusFailed
		}
	}

	envelope := map[string]any{
		"event": opts.eventType,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": payments.GatewayPayment{
					ID:       opts.paymentID,
					OrderID:  opts.orderID,
					Amount:   opts.amount,
					Currency: opts.currency,
					Status:   status,
				},
			},
		},
	}
	return json.Marshal(envelope)
}

func runWebhookSend(cmd *cobra.Command, opts *webhookOptions) error {
	out := cmd.OutOrStdout()
	if opts.orderID == "" {
		return errors.New("--order is required")
	}

	body, err := buildWebhookBody(opts)
	if err != nil {
		return err
	}

	sig := ""
	if opts.secret != "" {
		sig = payments.Sign(body, opts.secret)
	}
	fmt.Fprintf(out, "%s: %s\n", opts.header, sig)
	fmt.Fprintf(out, "Body: %s\n", body)

	if opts.dryRun {
		fmt.Fprintln(out, "[DRY RUN] Not sending request")
		return nil
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, opts.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Razorpay-Event-Id", "evt_"+uuid.NewString()[:12])
	if sig != "" {
		req.Header.Set(opts.header, sig)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Fprintf(out, "Status: %d\n%s\n", resp.StatusCode, respBody)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected with status %d", resp.StatusCode)
	}
	return nil
}
