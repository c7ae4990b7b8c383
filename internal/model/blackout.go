package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Причина закрытия дат.
type BlackoutCategory string

const (
	BlackoutCategoryMaintenance BlackoutCategory = "maintenance"
	BlackoutCategoryPersonal    BlackoutCategory = "personal"
	BlackoutCategoryOther       BlackoutCategory = "other"
)

func (c BlackoutCategory) Valid() bool {
	switch c {
	case BlackoutCategoryMaintenance, BlackoutCategoryPersonal, BlackoutCategoryOther:
		return true
	default:
		return false
	}
}

// blackout_ranges: закрытые капитаном даты, границы включительно.
type BlackoutRange struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	CharterID uuid.UUID `gorm:"type:uuid;not null;index:idx_blackouts_charter_range,priority:1"`
	StartDate string    `gorm:"type:varchar(10);not null;index:idx_blackouts_charter_range,priority:2"`
	EndDate   string    `gorm:"type:varchar(10);not null;index:idx_blackouts_charter_range,priority:3"`

	Reason   string           `gorm:"type:text"`
	Category BlackoutCategory `gorm:"type:varchar(32);not null"`

	CreatedBy uuid.UUID `gorm:"type:uuid"`
	CreatedAt time.Time

	Charter *Charter `gorm:"foreignKey:CharterID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (b *BlackoutRange) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}
