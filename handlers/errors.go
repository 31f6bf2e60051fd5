package handlers

import (
	"errors"
	"log"

	"github.com/anjiri1684/transport_portal/apperr"
	"github.com/anjiri1684/transport_portal/services"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders errors returned by handlers as
// {status:"error", code, message}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{
			"status":  "error",
			"code":    fe.Code,
			"message": fe.Message,
		})
	}

	var exists *services.AlreadyExistsError
	if errors.As(err, &exists) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"status":          "error",
			"code":            "AlreadyExists",
			"message":         "A payment for this route and billing period already exists.",
			"paymentRecordId": exists.Record.ID,
			"paymentStatus":   exists.Record.Status,
			"orderId":         exists.Record.GatewayOrderID,
		})
	}

	status := apperr.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		log.Printf("[ERROR] %v | Path: %s | Method: %s", err, c.Path(), c.Method())
	}
	return c.Status(status).JSON(fiber.Map{
		"status":  "error",
		"code":    apperr.ErrorCode(err),
		"message": apperr.PublicMessage(err),
	})
}

func badRequest(code, msg string) error {
	return apperr.InvalidErr(code, msg)
}
