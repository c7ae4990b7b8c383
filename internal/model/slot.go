package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultSlotCapacity: вместимость слота, если капитан её не задавал.
const DefaultSlotCapacity = 6

// Время отправления. Слоты дискретные и внутри дня не пересекаются.
type TimeSlot string

const (
	TimeSlotEarlyMorning TimeSlot = "06:00"
	TimeSlotMorning      TimeSlot = "10:00"
	TimeSlotAfternoon    TimeSlot = "14:00"
	TimeSlotEvening      TimeSlot = "18:00"
)

// TimeSlots: все слоты дня в порядке отправления.
var TimeSlots = []TimeSlot{
	TimeSlotEarlyMorning,
	TimeSlotMorning,
	TimeSlotAfternoon,
	TimeSlotEvening,
}

var slotLabels = map[TimeSlot]string{
	TimeSlotEarlyMorning: "6:00 AM",
	TimeSlotMorning:      "10:00 AM",
	TimeSlotAfternoon:    "2:00 PM",
	TimeSlotEvening:      "6:00 PM",
}

// ParseTimeSlot принимает как "14:00", так и "2:00 PM".
func ParseTimeSlot(v string) (TimeSlot, error) {
	v = strings.TrimSpace(v)
	if s := TimeSlot(v); s.Valid() {
		return s, nil
	}
	for s, label := range slotLabels {
		if strings.EqualFold(label, v) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSlot, v)
}

func (s TimeSlot) Valid() bool {
	_, ok := slotLabels[s]
	return ok
}

// Label: подпись для календаря.
func (s TimeSlot) Label() string {
	return slotLabels[s]
}

// StartOffset: смещение отправления от начала суток.
func (s TimeSlot) StartOffset() time.Duration {
	t, err := time.Parse("15:04", string(s))
	if err != nil {
		return 0
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
}

// SlotKey адресует одно состояние слота: (чартер, дата, время).
type SlotKey struct {
	CharterID uuid.UUID
	Date      string
	Slot      TimeSlot
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.CharterID, k.Date, k.Slot)
}

// slot_states
type SlotState struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	CharterID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_slot_states_key,priority:1"`
	Date      string    `gorm:"column:slot_date;type:varchar(10);not null;uniqueIndex:idx_slot_states_key,priority:2"`
	Slot      TimeSlot  `gorm:"column:time_slot;type:varchar(5);not null;uniqueIndex:idx_slot_states_key,priority:3"`

	Capacity    int `gorm:"not null"`
	BookedCount int `gorm:"not null;default:0"`

	// Цена за гостя, перекрывающая сезонные правила.
	CustomPriceCents *int64

	CreatedAt time.Time
	UpdatedAt time.Time

	Charter *Charter `gorm:"foreignKey:CharterID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (s *SlotState) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (s SlotState) Key() SlotKey {
	return SlotKey{CharterID: s.CharterID, Date: s.Date, Slot: s.Slot}
}

// Remaining: сколько гостей ещё можно принять.
func (s SlotState) Remaining() int {
	if s.BookedCount >= s.Capacity {
		return 0
	}
	return s.Capacity - s.BookedCount
}

func (s SlotState) IsFull() bool {
	return s.BookedCount >= s.Capacity
}
