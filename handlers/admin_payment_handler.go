package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/anjiri1684/transport_portal/apperr"
	"github.com/anjiri1684/transport_portal/database"
	"github.com/anjiri1684/transport_portal/models"
	"github.com/anjiri1684/transport_portal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type PaymentLister interface {
	List(ctx context.Context, f database.PaymentFilter) ([]models.PaymentRecord, int64, error)
}

type DeliveryLister interface {
	List(ctx context.Context, outcome string, limit, offset int) ([]models.WebhookDelivery, error)
}

type AdminPaymentHandler struct {
	Records    PaymentLister
	Deliveries DeliveryLister
	Refunds    *services.RefundService
	Reports    *services.ReportService
	Engine     *services.ReconciliationService
	SweepTTL   time.Duration
}

type RefundRequest struct {
	Amount *int64 `json:"amount" validate:"omitempty,gt=0"`
	Reason string `json:"reason" validate:"max=255"`
}

func pagination(c *fiber.Ctx) (page, pageSize int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	pageSize, _ = strconv.Atoi(c.Query("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	return page, pageSize
}

func dateRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	startDateStr := c.Query("start_date", time.Now().AddDate(0, -1, 0).Format("2006-01-02"))
	endDateStr := c.Query("end_date", time.Now().Format("2006-01-02"))

	startDate, err := time.Parse("2006-01-02", startDateStr)
	if err != nil {
		return time.Time{}, time.Time{}, badRequest("InvalidDate", "Invalid start_date format. Use YYYY-MM-DD.")
	}
	endDate, err := time.Parse("2006-01-02", endDateStr)
	if err != nil {
		return time.Time{}, time.Time{}, badRequest("InvalidDate", "Invalid end_date format. Use YYYY-MM-DD.")
	}
	return startDate, endDate.Add(24*time.Hour - time.Second), nil
}

func (h *AdminPaymentHandler) ListPayments(c *fiber.Ctx) error {
	page, pageSize := pagination(c)
	filter := database.PaymentFilter{
		Status: c.Query("status"),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	if raw := c.Query("student_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return badRequest("InvalidID", "Invalid student_id")
		}
		filter.StudentID = &id
	}
	if c.Query("start_date") != "" || c.Query("end_date") != "" {
		from, to, err := dateRange(c)
		if err != nil {
			return err
		}
		filter.From, filter.To = &from, &to
	}

	recs, total, err := h.Records.List(c.UserContext(), filter)
	if err != nil {
		return apperr.Wrap(err)
	}
	return c.JSON(fiber.Map{"data": recs, "total": total, "page": page, "page_size": pageSize})
}

func (h *AdminPaymentHandler) RefundPayment(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest("InvalidID", "Invalid payment record ID")
	}
	var req RefundRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest("InvalidBody", "Cannot parse JSON")
		}
	}
	if err := validate.Struct(req); err != nil {
		return badRequest("ValidationFailed", err.Error())
	}

	refund, err := h.Refunds.Refund(c.UserContext(), id, req.Amount, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(refund)
}

// TransactionReport returns the CSV, or archives it and returns the URL when
// archive=true.
func (h *AdminPaymentHandler) TransactionReport(c *fiber.Ctx) error {
	startDate, endDate, err := dateRange(c)
	if err != nil {
		return err
	}

	data, err := h.Reports.Generate(c.UserContext(), startDate, endDate)
	if err != nil {
		return err
	}

	if c.QueryBool("archive") {
		url, err := h.Reports.Archive(c.UserContext(), startDate, endDate, data)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"status": "success", "url": url})
	}

	c.Set("Content-Type", "text/csv")
	c.Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"payments_%s_to_%s.csv\"", startDate.Format("2006-01-02"), endDate.Format("2006-01-02")))
	return c.Send(data)
}

func (h *AdminPaymentHandler) Sweep(c *fiber.Ctx) error {
	report, err := h.Engine.Sweep(c.UserContext(), h.SweepTTL)
	if err != nil {
		return err
	}
	return c.JSON(report)
}

func (h *AdminPaymentHandler) WebhookDeliveries(c *fiber.Ctx) error {
	page, pageSize := pagination(c)
	deliveries, err := h.Deliveries.List(c.UserContext(), c.Query("outcome"), pageSize, (page-1)*pageSize)
	if err != nil {
		return apperr.Wrap(err)
	}
	return c.JSON(fiber.Map{"data": deliveries, "page": page, "page_size": pageSize})
}
