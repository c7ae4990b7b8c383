package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Тип изменения доступности.
type ChangeType string

const (
	ChangeCapacityChanged  ChangeType = "capacity_changed"
	ChangeBookingAdmitted  ChangeType = "booking_admitted"
	ChangeBookingReleased  ChangeType = "booking_released"
	ChangeBlockCreated     ChangeType = "block_created"
	ChangeBlockDeleted     ChangeType = "block_deleted"
	ChangePriceRuleChanged ChangeType = "price_rule_changed"
)

// availability_events: журнал опубликованных изменений.
type AvailabilityEvent struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	Seq        uint64     `gorm:"not null"`
	ChangeType ChangeType `gorm:"type:varchar(64);not null;index"`

	CharterID uuid.UUID `gorm:"type:uuid;not null;index"`
	Date      string    `gorm:"column:slot_date;type:varchar(10)"`
	Slot      TimeSlot  `gorm:"column:time_slot;type:varchar(5)"`

	// Инстанс, на котором произошло изменение.
	Origin string `gorm:"type:varchar(64)"`

	Payload datatypes.JSON

	CreatedAt time.Time `gorm:"index"`
}

func (e *AvailabilityEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
