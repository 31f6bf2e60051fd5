package handlers

import (
	"context"
	"errors"
	"log"

	"github.com/anjiri1684/transport_portal/apperr"
	"github.com/anjiri1684/transport_portal/cache"
	"github.com/anjiri1684/transport_portal/database"
	"github.com/anjiri1684/transport_portal/middleware"
	"github.com/anjiri1684/transport_portal/models"
	"github.com/anjiri1684/transport_portal/services"
	"github.com/anjiri1684/transport_portal/websocket"
	"github.com/go-playground/validator/v10"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var validate = validator.New()

type RecordReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error)
}

type StatusCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error)
	Put(ctx context.Context, rec *models.PaymentRecord) error
}

type PaymentHandler struct {
	Orders          *services.OrderService
	Engine          *services.ReconciliationService
	Webhooks        *services.WebhookService
	Records         RecordReader
	Cache           StatusCache // optional
	Hub             *websocket.Hub
	JWTSecret       string
	SignatureHeader string
}

type CreateOrderRequest struct {
	StudentID string `json:"studentId" validate:"required,uuid"`
	RouteID   string `json:"routeId" validate:"required,uuid"`
	StopName  string `json:"stopName" validate:"required,max=255"`
	FeeID     string `json:"feeId" validate:"required,uuid"`
}

type VerifyPaymentRequest struct {
	OrderID         string `json:"order_id" validate:"required"`
	PaymentID       string `json:"payment_id" validate:"required"`
	Signature       string `json:"signature" validate:"required"`
	PaymentRecordID string `json:"paymentRecordId" validate:"required,uuid"`
}

func (h *PaymentHandler) CreateOrder(c *fiber.Ctx) error {
	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("InvalidBody", "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest("ValidationFailed", err.Error())
	}

	userID, role, err := middleware.CurrentUser(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}
	studentID := uuid.MustParse(req.StudentID)
	if role != middleware.RoleAdmin && userID != studentID {
		return apperr.ForbiddenErr("You can only pay for your own transport fee.")
	}

	handle, err := h.Orders.CreateOrder(c.UserContext(), services.CreateOrderInput{
		StudentID: studentID,
		RouteID:   uuid.MustParse(req.RouteID),
		StopName:  req.StopName,
		FeeID:     uuid.MustParse(req.FeeID),
	})
	if err != nil {
		return err
	}
	return c.JSON(handle)
}

// VerifyPayment is the browser callback after checkout. The gateway
// signature authenticates it, so no bearer token is required.
func (h *PaymentHandler) VerifyPayment(c *fiber.Ctx) error {
	var req VerifyPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("InvalidBody", "Cannot parse JSON")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest("ValidationFailed", err.Error())
	}

	res, err := h.Engine.VerifyClient(c.UserContext(), services.ClientVerification{
		RecordID:  uuid.MustParse(req.PaymentRecordID),
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if errors.Is(err, services.ErrAmountMismatch) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":          "error",
			"code":            "AmountMismatch",
			"message":         apperr.PublicMessage(err),
			"paymentRecordId": res.Record.ID,
			"paymentStatus":   res.Record.Status,
		})
	}
	if err != nil {
		return err
	}

	if res.Outcome == services.OutcomePending {
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": models.PaymentPending, "paymentRecordId": res.Record.ID})
	}
	return c.JSON(fiber.Map{"status": res.Record.Status, "paymentRecordId": res.Record.ID, "outcome": res.Outcome})
}

// PaymentWebhook acknowledges every authenticated delivery with 200; the
// real outcome goes to the webhook delivery log.
func (h *PaymentHandler) PaymentWebhook(c *fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	outcome, err := h.Webhooks.Ingest(c.UserContext(), services.WebhookRequest{
		Body:      body,
		Signature: c.Get(h.SignatureHeader),
		EventID:   c.Get("X-Razorpay-Event-Id"),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok", "outcome": outcome})
}

func (h *PaymentHandler) GetPayment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest("InvalidID", "Invalid payment record ID")
	}
	userID, role, err := middleware.CurrentUser(c)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	rec, err := h.lookup(c.UserContext(), id)
	if err != nil {
		return err
	}
	if role != middleware.RoleAdmin && rec.StudentID != userID {
		return apperr.ForbiddenErr("You can only view your own payments.")
	}
	return c.JSON(rec)
}

func (h *PaymentHandler) lookup(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	if h.Cache != nil {
		rec, err := h.Cache.Get(ctx, id)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Printf("Payment status cache unavailable: %v", err)
		}
	}

	rec, err := h.Records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrRecordNotFound) {
			return nil, services.ErrPaymentNotFound
		}
		return nil, apperr.Wrap(err)
	}
	if h.Cache != nil && rec.Status.IsTerminal() {
		if err := h.Cache.Put(ctx, rec); err != nil {
			log.Printf("Failed to cache payment status %s: %v", rec.ID, err)
		}
	}
	return rec, nil
}

type socketAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// PaymentSocket expects {"type":"auth","token":...} as the first frame and
// then pushes the student's terminal payment statuses.
func (h *PaymentHandler) PaymentSocket(c *websocketcontrib.Conn) {
	var authMsg socketAuthMessage
	if err := c.ReadJSON(&authMsg); err != nil || authMsg.Type != "auth" {
		log.Printf("WebSocket auth failed: invalid or missing auth message, error: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid or missing auth message"})
		c.Close()
		return
	}

	userID, _, err := middleware.ParseToken(authMsg.Token, h.JWTSecret)
	if err != nil {
		log.Printf("WebSocket auth failed: invalid token, error: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid token"})
		c.Close()
		return
	}

	client := &websocket.Client{UserID: userID, Conn: c}
	h.Hub.Register(client)
	defer func() {
		h.Hub.Unregister(client)
		c.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if !websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseNormalClosure) {
				log.Printf("WebSocket read error for client %s: %v", userID, err)
			}
			return
		}
	}
}
