package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/charter-booking/internal/model"
)

type CharterRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Charter, error)
	Create(ctx context.Context, c *model.Charter) error
	ListByCaptain(ctx context.Context, captainID uuid.UUID) ([]model.Charter, error)
}

type GormCharterRepository struct {
	db *gorm.DB
}

func NewGormCharterRepository(db *gorm.DB) *GormCharterRepository {
	return &GormCharterRepository{db: db}
}

func (r *GormCharterRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Charter, error) {
	var c model.Charter
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *GormCharterRepository) Create(ctx context.Context, c *model.Charter) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *GormCharterRepository) ListByCaptain(ctx context.Context, captainID uuid.UUID) ([]model.Charter, error) {
	var charters []model.Charter
	if err := r.db.WithContext(ctx).
		Where("captain_id = ?", captainID).
		Order("name ASC").
		Find(&charters).Error; err != nil {
		return nil, err
	}
	return charters, nil
}

// notFound приводит ошибку GORM к доменной.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.ErrNotFound
	}
	return err
}
