package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/anjiri1684/transport_portal/cache"
	config "github.com/anjiri1684/transport_portal/configs"
	"github.com/anjiri1684/transport_portal/database"
	"github.com/anjiri1684/transport_portal/handlers"
	"github.com/anjiri1684/transport_portal/jobs"
	"github.com/anjiri1684/transport_portal/kafka"
	"github.com/anjiri1684/transport_portal/payments"
	"github.com/anjiri1684/transport_portal/routes"
	"github.com/anjiri1684/transport_portal/services"
	"github.com/anjiri1684/transport_portal/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("🔥 Invalid configuration: %v", err)
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(slogger)

	database.ConnectDB(cfg.DBDriver, cfg.DatabaseURL)
	if err := database.Migrate(database.DB); err != nil {
		log.Fatalf("🔥 Failed to migrate database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := database.NewPaymentStore(database.DB)
	deliveries := database.NewWebhookDeliveryStore(database.DB)
	gateway := payments.NewRazorpayClient(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.GatewayTimeout)

	hub := websocket.NewHub()
	go hub.Run(ctx)
	listeners := []services.TransitionListener{hub}

	var statusCache *cache.StatusCache
	if cfg.RedisAddr != "" {
		client, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Printf("Warning: Redis unavailable, status cache disabled: %v", err)
		} else {
			statusCache = cache.NewStatusCache(client, 24*time.Hour)
			listeners = append(listeners, statusCache)
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, 10, 5*time.Second)
		if err != nil {
			log.Fatalf("🔥 %v", err)
		}
		defer producer.Close()
		listeners = append(listeners, producer)
	}

	var archiver services.Archiver
	if cfg.CloudinaryURL != "" {
		a, err := services.NewCloudinaryArchiver(cfg.CloudinaryURL, "transport_payment_reports")
		if err != nil {
			log.Printf("Warning: Cloudinary unavailable, report archiving disabled: %v", err)
		} else {
			archiver = a
		}
	}

	orders := services.NewOrderService(database.NewFeeStore(database.DB), store, gateway, gateway.KeyID(), cfg.Currency, cfg.GatewayTimeout)
	engine := services.NewReconciliationService(store, gateway, cfg.RazorpayKeySecret, cfg.GatewayTimeout, listeners...)
	webhooks := services.NewWebhookService(engine, deliveries, cfg.RazorpayWebhookSecret, cfg.AllowUnsignedWebhooks)
	refunds := services.NewRefundService(store, database.NewRefundStore(database.DB), gateway, cfg.GatewayTimeout)
	for _, s := range []interface{ SetLogger(*slog.Logger) }{orders, engine, webhooks, refunds} {
		s.SetLogger(slogger)
	}
	if cfg.AllowUnsignedWebhooks {
		slogger.Warn("unsigned webhooks are accepted", "event", "unsigned_webhooks_enabled")
	}

	c := cron.New()
	if _, err := jobs.ScheduleSweep(c, cfg.SweepSchedule, engine, cfg.PendingPaymentTTL); err != nil {
		log.Fatalf("🔥 Invalid SWEEP_SCHEDULE: %v", err)
	}
	go c.Start()
	defer c.Stop()
	log.Println("✅ Cron job for stale payment sweep scheduled successfully.")

	app := fiber.New(fiber.Config{
		Prefork:           false,
		AppName:           "Transport Portal Payments",
		CaseSensitive:     true,
		StrictRouting:     true,
		EnablePrintRoutes: true,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorHandler:      handlers.ErrorHandler,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, OPTIONS",
		ExposeHeaders: "Content-Length, Content-Disposition",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "UTC",
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	paymentHandler := &handlers.PaymentHandler{
		Orders:          orders,
		Engine:          engine,
		Webhooks:        webhooks,
		Records:         store,
		Hub:             hub,
		JWTSecret:       cfg.JWTSecret,
		SignatureHeader: cfg.WebhookSignatureHeader,
	}
	if statusCache != nil {
		paymentHandler.Cache = statusCache
	}

	routes.PaymentRoutes(app, paymentHandler)
	routes.AdminRoutes(app, &handlers.AdminPaymentHandler{
		Records:    store,
		Deliveries: deliveries,
		Refunds:    refunds,
		Reports:    services.NewReportService(store, archiver),
		Engine:     engine,
		SweepTTL:   cfg.PendingPaymentTTL,
	}, cfg.JWTSecret)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	log.Printf("✅ Server is running on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("🔥 Server failed to start: %v", err)
	}
}
