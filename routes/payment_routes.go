package routes

import (
	"github.com/anjiri1684/transport_portal/handlers"
	"github.com/anjiri1684/transport_portal/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

func PaymentRoutes(app *fiber.App, h *handlers.PaymentHandler) {
	api := app.Group("/api/v1")

	api.Post("/payments/webhook", h.PaymentWebhook)
	api.Post("/payments/verify", h.VerifyPayment)

	payments := api.Group("/payments", middleware.Protected(h.JWTSecret))
	payments.Post("/orders", h.CreateOrder)
	payments.Get("/:id", h.GetPayment)

	api.Use("/ws/payments", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/ws/payments", websocket.New(h.PaymentSocket))
}
