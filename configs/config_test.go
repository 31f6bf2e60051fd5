package config

import (
	"strings"
	"testing"
	"time"
)

func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "PORT", "DB_DRIVER", "DATABASE_URL", "JWT_SECRET", "RAZORPAY_KEY_ID", "RAZORPAY_KEY_SECRET",
		"RAZORPAY_WEBHOOK_SECRET", "ALLOW_UNSIGNED_WEBHOOKS", "GATEWAY_TIMEOUT", "PENDING_PAYMENT_TTL", "KAFKA_BROKERS",
	} {
		t.Setenv(k, "")
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults for development", func(t *testing.T) {
		setEnv(t, map[string]string{"DATABASE_URL": "file::memory:", "JWT_SECRET": "jwt"})
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Env != "development" || cfg.Port != "8080" || cfg.Currency != "INR" {
			t.Errorf("unexpected defaults: %+v", cfg)
		}
		if cfg.GatewayTimeout != 10*time.Second || cfg.PendingPaymentTTL != 30*time.Minute {
			t.Errorf("unexpected durations: %s %s", cfg.GatewayTimeout, cfg.PendingPaymentTTL)
		}
		if cfg.WebhookSignatureHeader != "X-Razorpay-Signature" {
			t.Errorf("signature header = %s", cfg.WebhookSignatureHeader)
		}
	})

	t.Run("parses lists and durations", func(t *testing.T) {
		setEnv(t, map[string]string{
			"DATABASE_URL":    "file::memory:",
			"JWT_SECRET":      "jwt",
			"GATEWAY_TIMEOUT": "3",
			"KAFKA_BROKERS":   "k1:9092, k2:9092,",
		})
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.GatewayTimeout != 3*time.Second {
			t.Errorf("GatewayTimeout = %s", cfg.GatewayTimeout)
		}
		if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
			t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
		}
	})

	t.Run("rejects bad numbers", func(t *testing.T) {
		setEnv(t, map[string]string{"DATABASE_URL": "x", "JWT_SECRET": "jwt", "PENDING_PAYMENT_TTL": "soon"})
		if _, err := Load(); err == nil || !strings.Contains(err.Error(), "PENDING_PAYMENT_TTL") {
			t.Fatalf("expected PENDING_PAYMENT_TTL error, got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	base := AppConfig{Env: "development", DBDriver: "postgres", DatabaseURL: "postgres://", JWTSecret: "jwt"}

	cases := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"development without secrets", func(c *AppConfig) {}, ""},
		{"production needs webhook secret", func(c *AppConfig) {
			c.Env = "production"
			c.RazorpayKeyID, c.RazorpayKeySecret = "id", "secret"
		}, "RAZORPAY_WEBHOOK_SECRET"},
		{"production needs gateway keys", func(c *AppConfig) {
			c.Env = "production"
			c.RazorpayWebhookSecret = "wh"
		}, "RAZORPAY_KEY_ID"},
		{"unsigned bypass refused with a secret", func(c *AppConfig) {
			c.AllowUnsignedWebhooks = true
			c.RazorpayWebhookSecret = "wh"
		}, "ALLOW_UNSIGNED_WEBHOOKS"},
		{"unsigned bypass allowed in development without a secret", func(c *AppConfig) {
			c.AllowUnsignedWebhooks = true
		}, ""},
		{"unknown driver", func(c *AppConfig) { c.DBDriver = "mysql" }, "DB_DRIVER"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error mentioning %s, got %v", tc.wantErr, err)
			}
		})
	}
}
