package routes

import (
	"github.com/anjiri1684/transport_portal/handlers"
	"github.com/anjiri1684/transport_portal/middleware"
	"github.com/gofiber/fiber/v2"
)

func AdminRoutes(app *fiber.App, h *handlers.AdminPaymentHandler, jwtSecret string) {
	api := app.Group("/api/v1")

	admin := api.Group("/admin", middleware.Protected(jwtSecret), middleware.AdminRequired())

	payments := admin.Group("/payments")
	payments.Get("", h.ListPayments)
	payments.Get("/report", h.TransactionReport)
	payments.Post("/sweep", h.Sweep)
	payments.Post("/:id/refund", h.RefundPayment)

	admin.Get("/webhook-deliveries", h.WebhookDeliveries)
}
