package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// seasonal_rules: множитель или фиксированная цена на диапазон дат.
// Правила одного чартера могут пересекаться.
type SeasonalRule struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	CharterID uuid.UUID `gorm:"type:uuid;not null;index:idx_rules_charter_range,priority:1"`
	Name      string    `gorm:"type:varchar(255)"`
	StartDate string    `gorm:"type:varchar(10);not null;index:idx_rules_charter_range,priority:2"`
	EndDate   string    `gorm:"type:varchar(10);not null;index:idx_rules_charter_range,priority:3"`

	PriceMultiplier  float64 `gorm:"not null;default:1"`
	CustomPriceCents *int64

	CreatedAt time.Time `gorm:"index"`

	Charter *Charter `gorm:"foreignKey:CharterID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (r *SeasonalRule) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

func (r SeasonalRule) HasCustomPrice() bool {
	return r.CustomPriceCents != nil
}
