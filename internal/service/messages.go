package service

import (
	"time"

	"github.com/Leganyst/charter-booking/internal/admission"
	"github.com/Leganyst/charter-booking/internal/model"
	"github.com/Leganyst/charter-booking/internal/pricing"
	"github.com/Leganyst/charter-booking/internal/refund"
)

// Сообщения RPC. Идентификаторы передаются строками, даты: "YYYY-MM-DD",
// слоты: "06:00" / "10:00" / "14:00" / "18:00".

type CreateCharterRequest struct {
	CaptainID      string `json:"captain_id"`
	Name           string `json:"name"`
	BasePriceCents int64  `json:"base_price_cents"`
}

type CreateCharterResponse struct {
	Charter *Charter `json:"charter"`
}

type Charter struct {
	ID             string    `json:"id"`
	CaptainID      string    `json:"captain_id"`
	Name           string    `json:"name"`
	BasePriceCents int64     `json:"base_price_cents"`
	CreatedAt      time.Time `json:"created_at"`
}

type DayAvailabilityRequest struct {
	CharterID string `json:"charter_id"`
	Date      string `json:"date"`
}

type DayAvailabilityResponse struct {
	CharterID string               `json:"charter_id"`
	Date      string               `json:"date"`
	Slots     []admission.SlotView `json:"slots"`
}

type AdmitBookingRequest struct {
	CharterID      string `json:"charter_id"`
	CustomerID     string `json:"customer_id,omitempty"`
	Date           string `json:"date"`
	Slot           string `json:"slot"`
	GuestCount     int    `json:"guest_count"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type AdmitBookingResponse struct {
	Status      string            `json:"status"`
	Reason      string            `json:"reason,omitempty"`
	Booking     *Booking          `json:"booking,omitempty"`
	Price       *pricing.Decision `json:"price,omitempty"`
	BookedCount int               `json:"booked_count"`
	Capacity    int               `json:"capacity"`
	Replayed    bool              `json:"replayed,omitempty"`
}

type Booking struct {
	ID              string     `json:"id"`
	CharterID       string     `json:"charter_id"`
	CustomerID      string     `json:"customer_id,omitempty"`
	Date            string     `json:"date"`
	Slot            string     `json:"slot"`
	GuestCount      int        `json:"guest_count"`
	AmountPaidCents int64      `json:"amount_paid_cents"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	Comment         string     `json:"comment,omitempty"`
}

type CancelBookingRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason,omitempty"`
}

type CancelBookingResponse struct {
	Booking   *Booking     `json:"booking"`
	Refund    refund.Quote `json:"refund"`
	Remaining int          `json:"remaining"`
}

type QuoteRefundRequest struct {
	BookingID string `json:"booking_id"`
}

type QuoteRefundResponse struct {
	Refund refund.Quote `json:"refund"`
}

type RescheduleBookingRequest struct {
	BookingID string `json:"booking_id"`
	Date      string `json:"date"`
	Slot      string `json:"slot"`
}

type RescheduleBookingResponse struct {
	Admission *AdmitBookingResponse  `json:"admission"`
	Fee       refund.RescheduleQuote `json:"fee"`
	Previous  *Booking               `json:"previous,omitempty"`
}

type ListBookingsRequest struct {
	CaptainID string `json:"captain_id"`
	CharterID string `json:"charter_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	Page      int    `json:"page,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
}

type ListBookingsResponse struct {
	Bookings   []*Booking `json:"bookings"`
	TotalCount int64      `json:"total_count"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
}

type ConfigureSlotRequest struct {
	CaptainID        string `json:"captain_id"`
	CharterID        string `json:"charter_id"`
	Date             string `json:"date"`
	Slot             string `json:"slot"`
	Capacity         int    `json:"capacity"`
	CustomPriceCents *int64 `json:"custom_price_cents,omitempty"`
}

type ConfigureSlotResponse struct {
	Slot *SlotState `json:"slot"`
}

type SlotState struct {
	CharterID        string `json:"charter_id"`
	Date             string `json:"date"`
	Slot             string `json:"slot"`
	Capacity         int    `json:"capacity"`
	BookedCount      int    `json:"booked_count"`
	Remaining        int    `json:"remaining"`
	CustomPriceCents *int64 `json:"custom_price_cents,omitempty"`
}

type CreateBlockRequest struct {
	CaptainID string `json:"captain_id"`
	CharterID string `json:"charter_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason,omitempty"`
	Category  string `json:"category,omitempty"`
}

type CreateBlockResponse struct {
	Block         *Block   `json:"block,omitempty"`
	Rejected      bool     `json:"rejected"`
	ConflictDates []string `json:"conflict_dates,omitempty"`
}

type Block struct {
	ID        string    `json:"id"`
	CharterID string    `json:"charter_id"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Reason    string    `json:"reason,omitempty"`
	Category  string    `json:"category"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type DeleteBlockRequest struct {
	CaptainID string `json:"captain_id"`
	BlockID   string `json:"block_id"`
}

type DeleteBlockResponse struct{}

type ListBlocksRequest struct {
	CharterID string `json:"charter_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

type ListBlocksResponse struct {
	Blocks []*Block `json:"blocks"`
}

type CreatePriceRuleRequest struct {
	CaptainID        string  `json:"captain_id"`
	CharterID        string  `json:"charter_id"`
	Name             string  `json:"name,omitempty"`
	StartDate        string  `json:"start_date"`
	EndDate          string  `json:"end_date"`
	Multiplier       float64 `json:"multiplier,omitempty"`
	CustomPriceCents *int64  `json:"custom_price_cents,omitempty"`
}

type CreatePriceRuleResponse struct {
	Rule               *PriceRule `json:"rule"`
	OverlappingRuleIDs []string   `json:"overlapping_rule_ids,omitempty"`
}

type PriceRule struct {
	ID               string    `json:"id"`
	CharterID        string    `json:"charter_id"`
	Name             string    `json:"name,omitempty"`
	StartDate        string    `json:"start_date"`
	EndDate          string    `json:"end_date"`
	Multiplier       float64   `json:"multiplier"`
	CustomPriceCents *int64    `json:"custom_price_cents,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type DeletePriceRuleRequest struct {
	CaptainID string `json:"captain_id"`
	RuleID    string `json:"rule_id"`
}

type DeletePriceRuleResponse struct{}

type ListPriceRulesRequest struct {
	CharterID string `json:"charter_id"`
	Page      int    `json:"page,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
}

type ListPriceRulesResponse struct {
	Rules    []*PriceRule `json:"rules"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	HasNext  bool         `json:"has_next"`
}

type ListEventsRequest struct {
	CharterID string `json:"charter_id"`
	Limit     int    `json:"limit,omitempty"`
}

type ListEventsResponse struct {
	Events []*Event `json:"events"`
}

type Event struct {
	Seq       uint64    `json:"seq"`
	Type      string    `json:"type"`
	Date      string    `json:"date,omitempty"`
	Slot      string    `json:"slot,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func mapCharter(c *model.Charter) *Charter {
	return &Charter{
		ID:             c.ID.String(),
		CaptainID:      c.CaptainID.String(),
		Name:           c.Name,
		BasePriceCents: c.BasePriceCents,
		CreatedAt:      c.CreatedAt,
	}
}

func mapBooking(b *model.Booking) *Booking {
	if b == nil {
		return nil
	}
	out := &Booking{
		ID:              b.ID.String(),
		CharterID:       b.CharterID.String(),
		Date:            b.Date,
		Slot:            string(b.Slot),
		GuestCount:      b.GuestCount,
		AmountPaidCents: b.AmountPaidCents,
		Status:          string(b.Status),
		CreatedAt:       b.CreatedAt,
		CancelledAt:     b.CancelledAt,
		Comment:         b.Comment,
	}
	if b.CustomerID != nil {
		out.CustomerID = b.CustomerID.String()
	}
	return out
}

func mapAdmission(r admission.Result) *AdmitBookingResponse {
	resp := &AdmitBookingResponse{
		Status:      string(r.Status),
		Reason:      string(r.Reason),
		Booking:     mapBooking(r.Booking),
		BookedCount: r.BookedCount,
		Capacity:    r.Capacity,
		Replayed:    r.Replayed,
	}
	if r.Confirmed() && !r.Replayed {
		price := r.Price
		resp.Price = &price
	}
	return resp
}

func mapSlotState(s *model.SlotState) *SlotState {
	return &SlotState{
		CharterID:        s.CharterID.String(),
		Date:             s.Date,
		Slot:             string(s.Slot),
		Capacity:         s.Capacity,
		BookedCount:      s.BookedCount,
		Remaining:        s.Remaining(),
		CustomPriceCents: s.CustomPriceCents,
	}
}

func mapBlock(b *model.BlackoutRange) *Block {
	return &Block{
		ID:        b.ID.String(),
		CharterID: b.CharterID.String(),
		StartDate: b.StartDate,
		EndDate:   b.EndDate,
		Reason:    b.Reason,
		Category:  string(b.Category),
		CreatedBy: b.CreatedBy.String(),
		CreatedAt: b.CreatedAt,
	}
}

func mapRule(r *model.SeasonalRule) *PriceRule {
	return &PriceRule{
		ID:               r.ID.String(),
		CharterID:        r.CharterID.String(),
		Name:             r.Name,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		Multiplier:       r.PriceMultiplier,
		CustomPriceCents: r.CustomPriceCents,
		CreatedAt:        r.CreatedAt,
	}
}

func mapEvent(e *model.AvailabilityEvent) *Event {
	return &Event{
		Seq:       e.Seq,
		Type:      string(e.ChangeType),
		Date:      e.Date,
		Slot:      string(e.Slot),
		Origin:    e.Origin,
		CreatedAt: e.CreatedAt,
	}
}
