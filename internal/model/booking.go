package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// bookings
type Booking struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CharterID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_bookings_charter_date,priority:1"`
	CustomerID *uuid.UUID `gorm:"type:uuid;index"`

	Date string   `gorm:"column:slot_date;type:varchar(10);not null;index:idx_bookings_charter_date,priority:2"`
	Slot TimeSlot `gorm:"column:time_slot;type:varchar(5);not null"`

	GuestCount      int   `gorm:"not null"`
	AmountPaidCents int64 `gorm:"not null"`

	Status BookingStatus `gorm:"type:varchar(32);not null;index"`

	// Ключ идемпотентности запроса на бронирование.
	IdempotencyKey string `gorm:"type:varchar(128);not null;uniqueIndex"`

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CancelledAt *time.Time
	Comment     string `gorm:"type:text"`

	Charter *Charter `gorm:"foreignKey:CharterID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

func (b *Booking) BeforeCreate(*gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (b Booking) Key() SlotKey {
	return SlotKey{CharterID: b.CharterID, Date: b.Date, Slot: b.Slot}
}
