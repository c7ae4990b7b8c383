package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/charter-booking/internal/model"
)

type EventRepository interface {
	Append(ctx context.Context, e *model.AvailabilityEvent) error
	// Последние события чартера, новые первыми.
	ListByCharter(ctx context.Context, charterID uuid.UUID, limit int) ([]model.AvailabilityEvent, error)
}

type GormEventRepository struct {
	db *gorm.DB
}

func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	return &GormEventRepository{db: db}
}

func (r *GormEventRepository) Append(ctx context.Context, e *model.AvailabilityEvent) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *GormEventRepository) ListByCharter(ctx context.Context, charterID uuid.UUID, limit int) ([]model.AvailabilityEvent, error) {
	var events []model.AvailabilityEvent
	q := r.db.WithContext(ctx).
		Where("charter_id = ?", charterID).
		Order("created_at DESC, seq DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
