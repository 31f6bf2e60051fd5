package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/anjiri1684/transport_portal/apperr"
	"github.com/anjiri1684/transport_portal/database"
	"github.com/anjiri1684/transport_portal/models"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

var reportHeader = []string{
	"payment_record_id", "student_id", "route_id", "stop_name", "billing_period",
	"gateway_order_id", "gateway_payment_id", "amount_expected", "amount_captured",
	"currency", "status", "confirmed_via", "failure_reason", "created_at", "updated_at",
}

type PaymentLister interface {
	List(ctx context.Context, f database.PaymentFilter) ([]models.PaymentRecord, int64, error)
}

type Archiver interface {
	Archive(ctx context.Context, name string, data []byte) (string, error)
}

// BuildTransactionReport renders terminal records as CSV. Pending records
// are skipped.
func BuildTransactionReport(records []models.PaymentRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(reportHeader); err != nil {
		return nil, err
	}

	for _, r := range records {
		if !r.Status.IsTerminal() {
			continue
		}
		row := []string{
			r.ID.String(),
			r.StudentID.String(),
			r.RouteID.String(),
			r.StopName,
			r.BillingPeriod,
			r.GatewayOrderID,
			deref(r.GatewayPaymentID),
			strconv.FormatInt(r.AmountExpected, 10),
			"",
			r.Currency,
			string(r.Status),
			"",
			"",
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if r.AmountCaptured != nil {
			row[8] = strconv.FormatInt(*r.AmountCaptured, 10)
		}
		if r.ConfirmedVia != nil {
			row[11] = string(*r.ConfirmedVia)
		}
		if r.FailureReason != nil {
			row[12] = string(*r.FailureReason)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type ReportService struct {
	records  PaymentLister
	archiver Archiver
}

// NewReportService accepts a nil archiver; archiving is then refused.
func NewReportService(records PaymentLister, archiver Archiver) *ReportService {
	return &ReportService{records: records, archiver: archiver}
}

func (s *ReportService) Generate(ctx context.Context, from, to time.Time) ([]byte, error) {
	recs, _, err := s.records.List(ctx, database.PaymentFilter{From: &from, To: &to})
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	return BuildTransactionReport(recs)
}

// Archive uploads a generated report and returns its URL.
func (s *ReportService) Archive(ctx context.Context, from, to time.Time, data []byte) (string, error) {
	if s.archiver == nil {
		return "", apperr.New(apperr.Unavailable, "ArchiveDisabled", "Report archiving is not configured.", nil)
	}
	name := fmt.Sprintf("payments_%s_%s", from.UTC().Format("20060102"), to.UTC().Format("20060102"))
	url, err := s.archiver.Archive(ctx, name, data)
	if err != nil {
		return "", apperr.New(apperr.Unavailable, "ArchiveFailed", "Report could not be archived.", err)
	}
	return url, nil
}

type CloudinaryArchiver struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryArchiver(cloudinaryURL, folder string) (*CloudinaryArchiver, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, err
	}
	return &CloudinaryArchiver{cld: cld, folder: folder}, nil
}

func (a *CloudinaryArchiver) Archive(ctx context.Context, name string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	uploadResult, err := a.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID:     name,
		Folder:       a.folder,
		ResourceType: "raw",
	})
	if err != nil {
		return "", err
	}
	if uploadResult.Error.Message != "" {
		return "", errors.New(uploadResult.Error.Message)
	}
	return uploadResult.SecureURL, nil
}
