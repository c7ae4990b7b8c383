package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Charter: бронируемое судно. Принадлежит капитану.
type Charter struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	// Капитан-владелец календаря.
	CaptainID uuid.UUID `gorm:"type:uuid;not null;index"`

	Name string `gorm:"type:varchar(255);not null"`

	// Базовая цена за гостя до сезонных правил.
	BasePriceCents int64 `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (c *Charter) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
