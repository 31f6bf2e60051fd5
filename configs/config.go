package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var loadEnvOnce sync.Once

func Config(key string) string {
	loadEnvOnce.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("Warning: .env file not found, reading from system environment variables")
		}
	})

	return os.Getenv(key)
}

type AppConfig struct {
	Env                    string
	Port                   string
	DBDriver               string
	DatabaseURL            string
	JWTSecret              string
	RazorpayKeyID          string
	RazorpayKeySecret      string
	RazorpayWebhookSecret  string
	RazorpayBaseURL        string
	WebhookSignatureHeader string
	AllowUnsignedWebhooks  bool
	GatewayTimeout         time.Duration
	Currency               string
	PendingPaymentTTL      time.Duration
	SweepSchedule          string
	RedisAddr              string
	KafkaBrokers           []string
	CloudinaryURL          string
}

func (c AppConfig) IsProduction() bool { return c.Env == "production" }

// Load reads the typed configuration and validates it.
func Load() (AppConfig, error) {
	cfg := AppConfig{
		Env:                    withDefault(Config("APP_ENV"), "development"),
		Port:                   withDefault(Config("PORT"), "8080"),
		DBDriver:               withDefault(Config("DB_DRIVER"), "postgres"),
		DatabaseURL:            Config("DATABASE_URL"),
		JWTSecret:              Config("JWT_SECRET"),
		RazorpayKeyID:          Config("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:      Config("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret:  Config("RAZORPAY_WEBHOOK_SECRET"),
		RazorpayBaseURL:        Config("RAZORPAY_API_BASE_URL"),
		WebhookSignatureHeader: withDefault(Config("WEBHOOK_SIGNATURE_HEADER"), "X-Razorpay-Signature"),
		Currency:               withDefault(Config("PAYMENT_CURRENCY"), "INR"),
		SweepSchedule:          withDefault(Config("SWEEP_SCHEDULE"), "*/10 * * * *"),
		RedisAddr:              Config("REDIS_ADDR"),
		CloudinaryURL:          Config("CLOUDINARY_URL"),
	}

	var errs []error
	var err error
	if cfg.AllowUnsignedWebhooks, err = parseBool("ALLOW_UNSIGNED_WEBHOOKS"); err != nil {
		errs = append(errs, err)
	}
	if cfg.GatewayTimeout, err = parseDuration("GATEWAY_TIMEOUT", 10, time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.PendingPaymentTTL, err = parseDuration("PENDING_PAYMENT_TTL", 30, time.Minute); err != nil {
		errs = append(errs, err)
	}
	for _, b := range strings.Split(Config("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}
	return cfg, cfg.Validate()
}

// Validate refuses configurations that would accept forged payment
// confirmations.
func (c AppConfig) Validate() error {
	var errs []error
	if c.Env != "development" && c.Env != "production" {
		errs = append(errs, fmt.Errorf("APP_ENV must be development or production, got %q", c.Env))
	}
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.RazorpayWebhookSecret == "" {
			errs = append(errs, errors.New("RAZORPAY_WEBHOOK_SECRET is required in production"))
		}
		if c.RazorpayKeyID == "" || c.RazorpayKeySecret == "" {
			errs = append(errs, errors.New("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required in production"))
		}
		if c.AllowUnsignedWebhooks {
			errs = append(errs, errors.New("ALLOW_UNSIGNED_WEBHOOKS cannot be enabled in production"))
		}
	}
	if c.AllowUnsignedWebhooks && c.RazorpayWebhookSecret != "" {
		errs = append(errs, errors.New("ALLOW_UNSIGNED_WEBHOOKS cannot be combined with RAZORPAY_WEBHOOK_SECRET"))
	}
	return errors.Join(errs...)
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseBool(key string) (bool, error) {
	v := Config(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func parseDuration(key string, def int, unit time.Duration) (time.Duration, error) {
	v := Config(key)
	if v == "" {
		return time.Duration(def) * unit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return time.Duration(n) * unit, nil
}
