// Package blackout хранит закрытые капитаном даты.
//
// Создание диапазона берёт блокировки всех его дат, те же, что берёт допуск
// бронирования, и только под ними сверяется с журналом бронирований.
package blackout

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/charter-booking/internal/calendar"
	"github.com/Leganyst/charter-booking/internal/lock"
	"github.com/Leganyst/charter-booking/internal/model"
	"github.com/Leganyst/charter-booking/internal/notify"
)

type Store interface {
	Create(ctx context.Context, b *model.BlackoutRange) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.BlackoutRange, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Covers(ctx context.Context, charterID uuid.UUID, date string) (bool, error)
	ListOverlapping(ctx context.Context, charterID uuid.UUID, from, to string) ([]model.BlackoutRange, error)
}

// Ledger: часть журнала бронирований, нужная для проверки конфликтов.
type Ledger interface {
	FindConfirmedBookings(ctx context.Context, charterID uuid.UUID, from, to string) ([]model.Booking, error)
}

type CreateRequest struct {
	CharterID uuid.UUID
	CaptainID uuid.UUID
	StartDate string
	EndDate   string
	Reason    string
	Category  model.BlackoutCategory
}

// CreateResult: либо Block, либо непустой ConflictDates.
type CreateResult struct {
	Block         *model.BlackoutRange
	ConflictDates []string
}

func (r CreateResult) Rejected() bool {
	return len(r.ConflictDates) > 0
}

type Registry struct {
	store     Store
	ledger    Ledger
	locker    lock.Locker
	publisher notify.Publisher
	maxDays   int
	logger    *zap.Logger
}

func NewRegistry(
	store Store,
	ledger Ledger,
	locker lock.Locker,
	publisher notify.Publisher,
	maxDays int,
	logger *zap.Logger,
) *Registry {
	return &Registry{
		store:     store,
		ledger:    ledger,
		locker:    locker,
		publisher: publisher,
		maxDays:   maxDays,
		logger:    logger,
	}
}

func (r *Registry) IsBlocked(ctx context.Context, charterID uuid.UUID, date string) (bool, error) {
	blocked, err := r.store.Covers(ctx, charterID, date)
	if err != nil {
		return false, fmt.Errorf("check blackout %s/%s: %w", charterID, date, err)
	}
	return blocked, nil
}

func (r *Registry) CreateBlock(ctx context.Context, req CreateRequest) (CreateResult, error) {
	rng, err := calendar.NewDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return CreateResult{}, err
	}
	if r.maxDays > 0 && rng.Len() > r.maxDays {
		return CreateResult{}, fmt.Errorf("%w: %s is longer than %d days", model.ErrInvalidRange, rng, r.maxDays)
	}
	if req.Category == "" {
		req.Category = model.BlackoutCategoryOther
	}
	if !req.Category.Valid() {
		return CreateResult{}, fmt.Errorf("%w: %q", model.ErrInvalidCategory, req.Category)
	}

	days := rng.Days()
	unlock, err := r.locker.Acquire(ctx, lock.DateKeys(req.CharterID, days)...)
	if err != nil {
		return CreateResult{}, fmt.Errorf("lock %s: %w", rng, err)
	}
	defer unlock()

	bookings, err := r.ledger.FindConfirmedBookings(ctx, req.CharterID, rng.Start, rng.End)
	if err != nil {
		return CreateResult{}, fmt.Errorf("find confirmed bookings %s: %w", rng, err)
	}
	if conflicts := conflictDates(bookings); len(conflicts) > 0 {
		r.logger.Info("blackout rejected: confirmed bookings in range",
			zap.String("charter_id", req.CharterID.String()),
			zap.String("range", rng.String()),
			zap.Strings("conflict_dates", conflicts),
		)
		return CreateResult{ConflictDates: conflicts}, nil
	}

	block := &model.BlackoutRange{
		CharterID: req.CharterID,
		StartDate: rng.Start,
		EndDate:   rng.End,
		Reason:    req.Reason,
		Category:  req.Category,
		CreatedBy: req.CaptainID,
	}
	if err := r.store.Create(ctx, block); err != nil {
		return CreateResult{}, fmt.Errorf("create blackout %s: %w", rng, err)
	}

	r.logger.Info("blackout created",
		zap.String("block_id", block.ID.String()),
		zap.String("charter_id", block.CharterID.String()),
		zap.String("range", rng.String()),
		zap.String("category", string(block.Category)),
	)
	r.publishDays(ctx, model.ChangeBlockCreated, block.CharterID, days)
	return CreateResult{Block: block}, nil
}

func (r *Registry) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	block, err := r.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("blackout %s: %w", id, err)
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}

	r.logger.Info("blackout deleted", zap.String("block_id", id.String()))
	rng := calendar.DateRange{Start: block.StartDate, End: block.EndDate}
	r.publishDays(ctx, model.ChangeBlockDeleted, block.CharterID, rng.Days())
	return nil
}

func (r *Registry) GetBlock(ctx context.Context, id uuid.UUID) (*model.BlackoutRange, error) {
	return r.store.GetByID(ctx, id)
}

func (r *Registry) ListBlocks(ctx context.Context, charterID uuid.UUID, from, to string) ([]model.BlackoutRange, error) {
	rng, err := calendar.NewDateRange(from, to)
	if err != nil {
		return nil, err
	}
	return r.store.ListOverlapping(ctx, charterID, rng.Start, rng.End)
}

func (r *Registry) publishDays(ctx context.Context, t model.ChangeType, charterID uuid.UUID, days []string) {
	for _, d := range days {
		r.publisher.Publish(ctx, notify.Change{Type: t, CharterID: charterID, Date: d})
	}
}

// conflictDates: уникальные даты бронирований по возрастанию.
func conflictDates(bookings []model.Booking) []string {
	seen := make(map[string]struct{}, len(bookings))
	dates := make([]string, 0, len(bookings))
	for _, b := range bookings {
		if _, ok := seen[b.Date]; ok {
			continue
		}
		seen[b.Date] = struct{}{}
		dates = append(dates, b.Date)
	}
	sort.Strings(dates)
	return dates
}
