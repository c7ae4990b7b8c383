package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Leganyst/charter-booking/internal/admission"
	"github.com/Leganyst/charter-booking/internal/blackout"
	"github.com/Leganyst/charter-booking/internal/calendar"
	"github.com/Leganyst/charter-booking/internal/lock"
	"github.com/Leganyst/charter-booking/internal/model"
	"github.com/Leganyst/charter-booking/internal/pricing"
	"github.com/Leganyst/charter-booking/internal/repository"
)

// AvailabilityService: внешний фасад движка: gRPC и HTTP-шлюз вызывают его методы.
type AvailabilityService struct {
	admission *admission.Controller
	blocks    *blackout.Registry
	rules     *pricing.RuleService

	charters repository.CharterRepository
	bookings repository.BookingRepository
	events   repository.EventRepository

	now func() time.Time
}

func NewAvailabilityService(
	admissionCtrl *admission.Controller,
	blocks *blackout.Registry,
	rules *pricing.RuleService,
	charters repository.CharterRepository,
	bookings repository.BookingRepository,
	events repository.EventRepository,
) *AvailabilityService {
	return &AvailabilityService{
		admission: admissionCtrl,
		blocks:    blocks,
		rules:     rules,
		charters:  charters,
		bookings:  bookings,
		events:    events,
		now:       time.Now,
	}
}

// WithClock подменяет часы (для тестов политики возвратов).
func (s *AvailabilityService) WithClock(now func() time.Time) *AvailabilityService {
	s.now = now
	return s
}

func (s *AvailabilityService) CreateCharter(ctx context.Context, req *CreateCharterRequest) (*CreateCharterResponse, error) {
	captainID, err := parseID("captain_id", req.CaptainID)
	if err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	if req.BasePriceCents < 0 {
		return nil, status.Error(codes.InvalidArgument, "base_price_cents must not be negative")
	}

	c := &model.Charter{CaptainID: captainID, Name: req.Name, BasePriceCents: req.BasePriceCents}
	if err := s.charters.Create(ctx, c); err != nil {
		return nil, toStatus("create charter", err)
	}
	return &CreateCharterResponse{Charter: mapCharter(c)}, nil
}

func (s *AvailabilityService) GetDayAvailability(ctx context.Context, req *DayAvailabilityRequest) (*DayAvailabilityResponse, error) {
	charterID, err := parseID("charter_id", req.CharterID)
	if err != nil {
		return nil, err
	}

	slots, err := s.admission.DayAvailability(ctx, charterID, req.Date)
	if err != nil {
		return nil, toStatus("day availability", err)
	}
	return &DayAvailabilityResponse{CharterID: req.CharterID, Date: req.Date, Slots: slots}, nil
}

// AdmitBooking: отказ по вместимости или закрытой дате приходит в ответе, не ошибкой.
func (s *AvailabilityService) AdmitBooking(ctx context.Context, req *AdmitBookingRequest) (*AdmitBookingResponse, error) {
	charterID, err := parseID("charter_id", req.CharterID)
	if err != nil {
		return nil, err
	}
	var customerID *uuid.UUID
	if req.CustomerID != "" {
		id, err := parseID("customer_id", req.CustomerID)
		if err != nil {
			return nil, err
		}
		customerID = &id
	}

	res, err := s.admission.Admit(ctx, admission.Request{
		CharterID:      charterID,
		CustomerID:     customerID,
		Date:           req.Date,
		Slot:           model.TimeSlot(req.Slot),
		GuestCount:     req.GuestCount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, toStatus("admit booking", err)
	}
	return mapAdmission(res), nil
}

func (s *AvailabilityService) CancelBooking(ctx context.Context, req *CancelBookingRequest) (*CancelBookingResponse, error) {
	id, err := parseID("booking_id", req.BookingID)
	if err != nil {
		return nil, err
	}

	res, err := s.admission.Cancel(ctx, id, s.now(), req.Reason)
	if err != nil {
		return nil, toStatus("cancel booking", err)
	}
	return &CancelBookingResponse{
		Booking:   mapBooking(res.Booking),
		Refund:    res.Refund,
		Remaining: res.Slot.Remaining(),
	}, nil
}

func (s *AvailabilityService) QuoteRefund(ctx context.Context, req *QuoteRefundRequest) (*QuoteRefundResponse, error) {
	id, err := parseID("booking_id", req.BookingID)
	if err != nil {
		return nil, err
	}

	q, err := s.admission.QuoteRefund(ctx, id, s.now())
	if err != nil {
		return nil, toStatus("quote refund", err)
	}
	return &QuoteRefundResponse{Refund: q}, nil
}

func (s *AvailabilityService) RescheduleBooking(ctx context.Context, req *RescheduleBookingRequest) (*RescheduleBookingResponse, error) {
	id, err := parseID("booking_id", req.BookingID)
	if err != nil {
		return nil, err
	}

	res, err := s.admission.Reschedule(ctx, admission.RescheduleRequest{
		BookingID: id,
		Date:      req.Date,
		Slot:      model.TimeSlot(req.Slot),
		Now:       s.now(),
	})
	if err != nil {
		return nil, toStatus("reschedule booking", err)
	}
	return &RescheduleBookingResponse{
		Admission: mapAdmission(res.Admission),
		Fee:       res.Fee,
		Previous:  mapBooking(res.Previous),
	}, nil
}

func (s *AvailabilityService) ListBookings(ctx context.Context, req *ListBookingsRequest) (*ListBookingsResponse, error) {
	if _, err := s.captainCharter(ctx, req.CaptainID, req.CharterID); err != nil {
		return nil, err
	}
	rng, err := calendar.NewDateRange(req.From, req.To)
	if err != nil {
		return nil, toStatus("list bookings", err)
	}

	page := calendar.PageRequest{Page: req.Page, Size: req.PageSize}.Normalize()

	charterID, _ := uuid.Parse(req.CharterID)
	bookings, total, err := s.bookings.ListByCharterRange(ctx, charterID, rng.Start, rng.End, page.Size, page.Offset())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list bookings: %v", err)
	}

	resp := &ListBookingsResponse{
		Bookings:   make([]*Booking, 0, len(bookings)),
		TotalCount: total,
		Page:       page.Page,
		PageSize:   page.Size,
	}
	for i := range bookings {
		resp.Bookings = append(resp.Bookings, mapBooking(&bookings[i]))
	}
	return resp, nil
}

func (s *AvailabilityService) ConfigureSlot(ctx context.Context, req *ConfigureSlotRequest) (*ConfigureSlotResponse, error) {
	charter, err := s.captainCharter(ctx, req.CaptainID, req.CharterID)
	if err != nil {
		return nil, err
	}

	state, err := s.admission.ConfigureSlot(ctx, model.SlotKey{
		CharterID: charter.ID,
		Date:      req.Date,
		Slot:      model.TimeSlot(req.Slot),
	}, req.Capacity, req.CustomPriceCents)
	if err != nil {
		return nil, toStatus("configure slot", err)
	}
	return &ConfigureSlotResponse{Slot: mapSlotState(state)}, nil
}

func (s *AvailabilityService) CreateBlock(ctx context.Context, req *CreateBlockRequest) (*CreateBlockResponse, error) {
	charter, err := s.captainCharter(ctx, req.CaptainID, req.CharterID)
	if err != nil {
		return nil, err
	}

	res, err := s.blocks.CreateBlock(ctx, blackout.CreateRequest{
		CharterID: charter.ID,
		CaptainID: charter.CaptainID,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Reason:    req.Reason,
		Category:  model.BlackoutCategory(req.Category),
	})
	if err != nil {
		return nil, toStatus("create block", err)
	}
	if res.Rejected() {
		return &CreateBlockResponse{Rejected: true, ConflictDates: res.ConflictDates}, nil
	}
	return &CreateBlockResponse{Block: mapBlock(res.Block)}, nil
}

func (s *AvailabilityService) DeleteBlock(ctx context.Context, req *DeleteBlockRequest) (*DeleteBlockResponse, error) {
	id, err := parseID("block_id", req.BlockID)
	if err != nil {
		return nil, err
	}
	block, err := s.blocks.GetBlock(ctx, id)
	if err != nil {
		return nil, toStatus("delete block", err)
	}
	if _, err := s.captainCharter(ctx, req.CaptainID, block.CharterID.String()); err != nil {
		return nil, err
	}

	if err := s.blocks.DeleteBlock(ctx, id); err != nil {
		return nil, toStatus("delete block", err)
	}
	return &DeleteBlockResponse{}, nil
}

func (s *AvailabilityService) ListBlocks(ctx context.Context, req *ListBlocksRequest) (*ListBlocksResponse, error) {
	charterID, err := parseID("charter_id", req.CharterID)
	if err != nil {
		return nil, err
	}

	blocks, err := s.blocks.ListBlocks(ctx, charterID, req.From, req.To)
	if err != nil {
		return nil, toStatus("list blocks", err)
	}
	resp := &ListBlocksResponse{Blocks: make([]*Block, 0, len(blocks))}
	for i := range blocks {
		resp.Blocks = append(resp.Blocks, mapBlock(&blocks[i]))
	}
	return resp, nil
}

func (s *AvailabilityService) CreatePriceRule(ctx context.Context, req *CreatePriceRuleRequest) (*CreatePriceRuleResponse, error) {
	charter, err := s.captainCharter(ctx, req.CaptainID, req.CharterID)
	if err != nil {
		return nil, err
	}

	res, err := s.rules.CreateRule(ctx, pricing.CreateRuleRequest{
		CharterID:        charter.ID,
		Name:             req.Name,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		Multiplier:       req.Multiplier,
		CustomPriceCents: req.CustomPriceCents,
	})
	if err != nil {
		return nil, toStatus("create price rule", err)
	}
	resp := &CreatePriceRuleResponse{Rule: mapRule(res.Rule)}
	for _, o := range res.Overlaps {
		resp.OverlappingRuleIDs = append(resp.OverlappingRuleIDs, o.ID.String())
	}
	return resp, nil
}

func (s *AvailabilityService) DeletePriceRule(ctx context.Context, req *DeletePriceRuleRequest) (*DeletePriceRuleResponse, error) {
	id, err := parseID("rule_id", req.RuleID)
	if err != nil {
		return nil, err
	}
	rule, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return nil, toStatus("delete price rule", err)
	}
	if _, err := s.captainCharter(ctx, req.CaptainID, rule.CharterID.String()); err != nil {
		return nil, err
	}

	if err := s.rules.DeleteRule(ctx, id); err != nil {
		return nil, toStatus("delete price rule", err)
	}
	return &DeletePriceRuleResponse{}, nil
}

func (s *AvailabilityService) ListPriceRules(ctx context.Context, req *ListPriceRulesRequest) (*ListPriceRulesResponse, error) {
	charterID, err := parseID("charter_id", req.CharterID)
	if err != nil {
		return nil, err
	}

	rules, err := s.rules.ListRules(ctx, charterID)
	if err != nil {
		return nil, toStatus("list price rules", err)
	}

	p := calendar.Paginate(rules, calendar.PageRequest{Page: req.Page, Size: req.PageSize})
	resp := &ListPriceRulesResponse{
		Rules:    make([]*PriceRule, 0, len(p.Items)),
		Total:    p.Total,
		Page:     p.Request.Page,
		PageSize: p.Request.Size,
		HasNext:  p.HasNext(),
	}
	for i := range p.Items {
		resp.Rules = append(resp.Rules, mapRule(&p.Items[i]))
	}
	return resp, nil
}

func (s *AvailabilityService) ListEvents(ctx context.Context, req *ListEventsRequest) (*ListEventsResponse, error) {
	charterID, err := parseID("charter_id", req.CharterID)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	events, err := s.events.ListByCharter(ctx, charterID, limit)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "list events: %v", err)
	}
	resp := &ListEventsResponse{Events: make([]*Event, 0, len(events))}
	for i := range events {
		resp.Events = append(resp.Events, mapEvent(&events[i]))
	}
	return resp, nil
}

// captainCharter проверяет, что календарь принадлежит капитану.
func (s *AvailabilityService) captainCharter(ctx context.Context, captainID, charterID string) (*model.Charter, error) {
	capID, err := uuid.Parse(captainID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "captain_id is invalid")
	}
	chID, err := uuid.Parse(charterID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "charter_id is invalid")
	}

	c, err := calendar.ValidateCaptain(ctx, s.charters, capID, chID)
	if err != nil {
		return nil, toStatus("validate captain", err)
	}
	return c, nil
}

func parseID(field, v string) (uuid.UUID, error) {
	if v == "" {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	id, err := uuid.Parse(v)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "%s is invalid", field)
	}
	return id, nil
}

// toStatus переводит доменные ошибки в коды gRPC.
func toStatus(op string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), fmt.Sprintf("%s: %v", op, err))
}

func codeOf(err error) codes.Code {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, model.ErrInvalidSlot),
		errors.Is(err, model.ErrInvalidDate),
		errors.Is(err, model.ErrInvalidRange),
		errors.Is(err, model.ErrInvalidCapacity),
		errors.Is(err, model.ErrInvalidRule),
		errors.Is(err, model.ErrInvalidCategory),
		errors.Is(err, calendar.ErrInvalidCaptainID),
		errors.Is(err, calendar.ErrInvalidCharterID):
		return codes.InvalidArgument
	case errors.Is(err, model.ErrNotCharterCaptain):
		return codes.PermissionDenied
	case errors.Is(err, model.ErrBookingNotActive),
		errors.Is(err, model.ErrUnderflow):
		return codes.FailedPrecondition
	case errors.Is(err, model.ErrDuplicateBooking):
		return codes.AlreadyExists
	case errors.Is(err, model.ErrContention),
		errors.Is(err, lock.ErrTimeout):
		return codes.Aborted
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}
