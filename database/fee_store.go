package database

import (
	"context"
	"errors"

	"github.com/anjiri1684/transport_portal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrFeeNotFound = errors.New("route fee not found")

type FeeStore struct {
	db *gorm.DB
}

func NewFeeStore(db *gorm.DB) *FeeStore {
	return &FeeStore{db: db}
}

func (s *FeeStore) GetFee(ctx context.Context, id uuid.UUID) (*models.RouteFee, error) {
	var fee models.RouteFee
	if err := s.db.WithContext(ctx).First(&fee, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFeeNotFound
		}
		return nil, err
	}
	return &fee, nil
}

func (s *FeeStore) Create(ctx context.Context, fee *models.RouteFee) error {
	return s.db.WithContext(ctx).Create(fee).Error
}
