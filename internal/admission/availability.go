package admission

import (
	"context"

	"github.com/google/uuid"

	"github.com/Leganyst/charter-booking/internal/calendar"
	"github.com/Leganyst/charter-booking/internal/model"
	"github.com/Leganyst/charter-booking/internal/pricing"
)

// SlotView: слот глазами клиента.
type SlotView struct {
	Slot      model.TimeSlot   `json:"slot"`
	Label     string           `json:"label"`
	Capacity  int              `json:"capacity"`
	Booked    int              `json:"booked"`
	Remaining int              `json:"remaining"`
	Blocked   bool             `json:"blocked"`
	Price     pricing.Decision `json:"price"`
}

func (v SlotView) Available() bool {
	return !v.Blocked && v.Remaining > 0
}

// DayAvailability: все слоты дня. Чтение без блокировок.
func (c *Controller) DayAvailability(ctx context.Context, charterID uuid.UUID, date string) ([]SlotView, error) {
	date, err := calendar.NormalizeDate(date)
	if err != nil {
		return nil, err
	}
	charter, err := c.charters.GetByID(ctx, charterID)
	if err != nil {
		return nil, err
	}
	blocked, err := c.blackouts.IsBlocked(ctx, charterID, date)
	if err != nil {
		return nil, err
	}
	seasonal, err := c.pricer.ResolvePrice(ctx, charterID, date, charter.BasePriceCents)
	if err != nil {
		return nil, err
	}

	views := make([]SlotView, 0, len(model.TimeSlots))
	for _, slot := range model.TimeSlots {
		state, err := c.slots.GetOrDefault(ctx, model.SlotKey{CharterID: charterID, Date: date, Slot: slot})
		if err != nil {
			return nil, err
		}
		price := seasonal
		if state.CustomPriceCents != nil {
			price = pricing.SlotOverride(*state.CustomPriceCents, charter.BasePriceCents)
		}
		views = append(views, SlotView{
			Slot:      slot,
			Label:     slot.Label(),
			Capacity:  state.Capacity,
			Booked:    state.BookedCount,
			Remaining: state.Remaining(),
			Blocked:   blocked,
			Price:     price,
		})
	}
	return views, nil
}
