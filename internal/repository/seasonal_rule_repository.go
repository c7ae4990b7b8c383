package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/charter-booking/internal/model"
)

type SeasonalRuleRepository interface {
	Create(ctx context.Context, rule *model.SeasonalRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.SeasonalRule, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Правила, диапазон которых содержит дату.
	ListCovering(ctx context.Context, charterID uuid.UUID, date string) ([]model.SeasonalRule, error)
	ListByCharter(ctx context.Context, charterID uuid.UUID) ([]model.SeasonalRule, error)
}

type GormSeasonalRuleRepository struct {
	db *gorm.DB
}

func NewGormSeasonalRuleRepository(db *gorm.DB) *GormSeasonalRuleRepository {
	return &GormSeasonalRuleRepository{db: db}
}

func (r *GormSeasonalRuleRepository) Create(ctx context.Context, rule *model.SeasonalRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *GormSeasonalRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.SeasonalRule, error) {
	var rule model.SeasonalRule
	if err := r.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &rule, nil
}

func (r *GormSeasonalRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&model.SeasonalRule{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("seasonal rule %s: %w", id, model.ErrNotFound)
	}
	return nil
}

func (r *GormSeasonalRuleRepository) ListCovering(
	ctx context.Context,
	charterID uuid.UUID,
	date string,
) ([]model.SeasonalRule, error) {
	var rules []model.SeasonalRule
	if err := r.db.WithContext(ctx).
		Where("charter_id = ?", charterID).
		Where("start_date <= ? AND end_date >= ?", date, date).
		Order("created_at DESC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *GormSeasonalRuleRepository) ListByCharter(ctx context.Context, charterID uuid.UUID) ([]model.SeasonalRule, error) {
	var rules []model.SeasonalRule
	if err := r.db.WithContext(ctx).
		Where("charter_id = ?", charterID).
		Order("start_date ASC, created_at ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}
