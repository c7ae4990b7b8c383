package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/charter-booking/internal/model"
)

type BlackoutRepository interface {
	Create(ctx context.Context, b *model.BlackoutRange) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.BlackoutRange, error)
	// Delete возвращает model.ErrNotFound, если диапазона нет.
	Delete(ctx context.Context, id uuid.UUID) error
	// Есть ли закрытый диапазон, содержащий дату.
	Covers(ctx context.Context, charterID uuid.UUID, date string) (bool, error)
	// Диапазоны, пересекающие [from, to].
	ListOverlapping(ctx context.Context, charterID uuid.UUID, from, to string) ([]model.BlackoutRange, error)
}

type GormBlackoutRepository struct {
	db *gorm.DB
}

func NewGormBlackoutRepository(db *gorm.DB) *GormBlackoutRepository {
	return &GormBlackoutRepository{db: db}
}

func (r *GormBlackoutRepository) Create(ctx context.Context, b *model.BlackoutRange) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *GormBlackoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.BlackoutRange, error) {
	var b model.BlackoutRange
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *GormBlackoutRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&model.BlackoutRange{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("blackout %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (r *GormBlackoutRepository) Covers(ctx context.Context, charterID uuid.UUID, date string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).
		Model(&model.BlackoutRange{}).
		Where("charter_id = ?", charterID).
		Where("start_date <= ? AND end_date >= ?", date, date).
		Limit(1).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *GormBlackoutRepository) ListOverlapping(
	ctx context.Context,
	charterID uuid.UUID,
	from, to string,
) ([]model.BlackoutRange, error) {
	var blocks []model.BlackoutRange
	if err := r.db.WithContext(ctx).
		Where("charter_id = ?", charterID).
		Where("start_date <= ? AND end_date >= ?", to, from).
		Order("start_date ASC").
		Find(&blocks).Error; err != nil {
		return nil, err
	}
	return blocks, nil
}
