package database

import (
	"context"

	"github.com/anjiri1684/transport_portal/models"
	"gorm.io/gorm"
)

type WebhookDeliveryStore struct {
	db *gorm.DB
}

func NewWebhookDeliveryStore(db *gorm.DB) *WebhookDeliveryStore {
	return &WebhookDeliveryStore{db: db}
}

func (s *WebhookDeliveryStore) Record(ctx context.Context, d *models.WebhookDelivery) error {
	return s.db.WithContext(ctx).Create(d).Error
}

func (s *WebhookDeliveryStore) List(ctx context.Context, outcome string, limit, offset int) ([]models.WebhookDelivery, error) {
	query := s.db.WithContext(ctx).Order("received_at desc")
	if outcome != "" {
		query = query.Where("outcome = ?", outcome)
	}
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	var out []models.WebhookDelivery
	err := query.Find(&out).Error
	return out, err
}
