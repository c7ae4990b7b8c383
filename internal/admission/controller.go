// Package admission решает, можно ли принять бронирование.
//
// Порядок: проверка числа гостей, закрытые даты, атомарный допуск в слоте,
// цена, запись в журнал бронирований, публикация изменения. Если запись
// в журнал не удалась, занятые места возвращаются.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/charter-booking/internal/calendar"
	"github.com/Leganyst/charter-booking/internal/lock"
	"github.com/Leganyst/charter-booking/internal/model"
	"github.com/Leganyst/charter-booking/internal/notify"
	"github.com/Leganyst/charter-booking/internal/pricing"
	"github.com/Leganyst/charter-booking/internal/repository"
)

type SlotStore interface {
	GetOrDefault(ctx context.Context, key model.SlotKey) (*model.SlotState, error)
	SetCapacity(ctx context.Context, key model.SlotKey, capacity int, customPriceCents *int64) (*model.SlotState, error)
	TryAdmit(ctx context.Context, key model.SlotKey, units int) (repository.AdmitResult, error)
	Release(ctx context.Context, key model.SlotKey, units int) (*model.SlotState, error)
}

type Ledger interface {
	InsertConfirmed(ctx context.Context, booking *model.Booking) error
	MarkCancelled(ctx context.Context, id uuid.UUID, comment string) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error)
}

type Blackouts interface {
	IsBlocked(ctx context.Context, charterID uuid.UUID, date string) (bool, error)
}

type Pricer interface {
	ResolvePrice(ctx context.Context, charterID uuid.UUID, date string, basePriceCents int64) (pricing.Decision, error)
}

type Charters interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Charter, error)
}

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

type Reason string

const (
	ReasonDateBlocked       Reason = "date_blocked"
	ReasonSlotFull          Reason = "slot_full"
	ReasonInvalidGuestCount Reason = "invalid_guest_count"
	ReasonInternalError     Reason = "internal_error"
)

type Request struct {
	CharterID  uuid.UUID
	CustomerID *uuid.UUID
	Date       string
	Slot       model.TimeSlot
	GuestCount int
	// Пустой ключ: сгенерируем новый.
	IdempotencyKey string
}

// Result: итог допуска. Отказы (Rejected): не ошибки.
type Result struct {
	Status      Status
	Reason      Reason
	Booking     *model.Booking
	Price       pricing.Decision
	BookedCount int
	Capacity    int
	// Replayed: вернули ранее записанное бронирование с тем же ключом.
	Replayed bool
}

func (r Result) Confirmed() bool {
	return r.Status == StatusConfirmed
}

func rejected(reason Reason) Result {
	return Result{Status: StatusRejected, Reason: reason}
}

func replayed(b *model.Booking) Result {
	return Result{Status: StatusConfirmed, Booking: b, Replayed: true}
}

// replayOf отдаёт сохранённое бронирование, только если ключ повторяет тот же
// запрос и бронирование всё ещё держит места.
func replayOf(b *model.Booking, key model.SlotKey, guests int) (Result, error) {
	if b.Status != model.BookingStatusConfirmed {
		return Result{}, fmt.Errorf("%w: key %q belongs to %s booking %s",
			model.ErrDuplicateBooking, b.IdempotencyKey, b.Status, b.ID)
	}
	if b.Key() != key || b.GuestCount != guests {
		return Result{}, fmt.Errorf("%w: key %q already used for %d guests in %s",
			model.ErrDuplicateBooking, b.IdempotencyKey, b.GuestCount, b.Key())
	}
	return replayed(b), nil
}

type Deps struct {
	Slots     SlotStore
	Ledger    Ledger
	Blackouts Blackouts
	Pricer    Pricer
	Charters  Charters
	Locker    lock.Locker
	Publisher notify.Publisher
}

type Options struct {
	// Попыток записи в журнал, включая первую.
	LedgerWriteAttempts int
	// Часовой пояс дат бронирований.
	Location *time.Location
}

type Controller struct {
	slots     SlotStore
	ledger    Ledger
	blackouts Blackouts
	pricer    Pricer
	charters  Charters
	locker    lock.Locker
	publisher notify.Publisher

	ledgerAttempts int
	loc            *time.Location
	logger         *zap.Logger
}

func NewController(deps Deps, opts Options, logger *zap.Logger) *Controller {
	if opts.LedgerWriteAttempts < 1 {
		opts.LedgerWriteAttempts = 2
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Controller{
		slots:          deps.Slots,
		ledger:         deps.Ledger,
		blackouts:      deps.Blackouts,
		pricer:         deps.Pricer,
		charters:       deps.Charters,
		locker:         deps.Locker,
		publisher:      deps.Publisher,
		ledgerAttempts: opts.LedgerWriteAttempts,
		loc:            opts.Location,
		logger:         logger,
	}
}

// Admit принимает или отклоняет запрос на бронирование.
// Ошибка возвращается вместе с Rejected(InternalError), при неверном запросе
// и при повторе ключа с другим запросом (model.ErrDuplicateBooking).
func (c *Controller) Admit(ctx context.Context, req Request) (Result, error) {
	return c.admit(ctx, req, nil)
}

// admit: carryAmount != nil: сумма переносится из старого бронирования, цена не пересчитывается.
func (c *Controller) admit(ctx context.Context, req Request, carryAmount *int64) (Result, error) {
	key, err := NewSlotKey(req.CharterID, req.Date, string(req.Slot))
	if err != nil {
		return Result{}, err
	}
	log := c.logger.With(zap.String("slot_key", key.String()), zap.Int("guests", req.GuestCount))

	if req.GuestCount < 1 {
		return rejected(ReasonInvalidGuestCount), nil
	}

	charter, err := c.charters.GetByID(ctx, key.CharterID)
	if err != nil {
		return Result{}, fmt.Errorf("charter %s: %w", key.CharterID, err)
	}

	unlock, err := c.locker.Acquire(ctx, lock.DateKey(key.CharterID, key.Date))
	if err != nil {
		log.Warn("date lock not acquired", zap.Error(err))
		return rejected(ReasonInternalError), fmt.Errorf("lock %s: %w", key, err)
	}
	defer unlock()

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.NewString()
	} else {
		existing, err := c.ledger.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			res, err := replayOf(existing, key, req.GuestCount)
			if err != nil {
				log.Warn("idempotency key reused", zap.String("booking_id", existing.ID.String()), zap.Error(err))
				return res, err
			}
			log.Info("booking request replayed", zap.String("booking_id", existing.ID.String()))
			return res, nil
		case !errors.Is(err, model.ErrNotFound):
			return rejected(ReasonInternalError), fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	// Вместимость и цену слота читаем под блокировкой: ConfigureSlot берёт ту же.
	state, err := c.slots.GetOrDefault(ctx, key)
	if err != nil {
		return rejected(ReasonInternalError), err
	}
	if req.GuestCount > state.Capacity {
		res := rejected(ReasonInvalidGuestCount)
		res.BookedCount, res.Capacity = state.BookedCount, state.Capacity
		return res, nil
	}

	blocked, err := c.blackouts.IsBlocked(ctx, key.CharterID, key.Date)
	if err != nil {
		return rejected(ReasonInternalError), err
	}
	if blocked {
		return rejected(ReasonDateBlocked), nil
	}

	admit, err := c.slots.TryAdmit(ctx, key, req.GuestCount)
	if err != nil {
		log.Error("try admit failed", zap.Error(err))
		return rejected(ReasonInternalError), err
	}
	if !admit.Admitted {
		res := rejected(ReasonSlotFull)
		res.BookedCount, res.Capacity = admit.BookedCount, admit.Capacity
		return res, nil
	}

	price, err := c.resolvePrice(ctx, charter, state)
	if err != nil {
		c.compensate(ctx, log, key, req.GuestCount, err)
		return rejected(ReasonInternalError), err
	}

	amount := price.PriceCents * int64(req.GuestCount)
	if carryAmount != nil {
		amount = *carryAmount
	}

	booking := &model.Booking{
		ID:              uuid.New(),
		CharterID:       key.CharterID,
		CustomerID:      req.CustomerID,
		Date:            key.Date,
		Slot:            key.Slot,
		GuestCount:      req.GuestCount,
		AmountPaidCents: amount,
		IdempotencyKey:  req.IdempotencyKey,
	}

	stored, err := c.insert(ctx, log, booking)
	if err != nil {
		c.compensate(ctx, log, key, req.GuestCount, err)
		return rejected(ReasonInternalError), fmt.Errorf("ledger write %s: %w", key, err)
	}
	if stored.ID != booking.ID {
		// Ключ записал параллельный запрос: наш допуск лишний.
		if _, err := c.slots.Release(context.WithoutCancel(ctx), key, req.GuestCount); err != nil {
			log.Error("release of duplicate admission failed", zap.Bool("fatal", true), zap.Error(err))
		}
		return replayOf(stored, key, req.GuestCount)
	}

	log.Info("booking admitted",
		zap.String("booking_id", booking.ID.String()),
		zap.Int("booked", admit.BookedCount),
		zap.Int("capacity", admit.Capacity),
		zap.Int64("amount_cents", amount),
	)
	c.publisher.Publish(ctx, notify.Change{
		Type:      model.ChangeBookingAdmitted,
		CharterID: key.CharterID,
		Date:      key.Date,
		Slot:      key.Slot,
	})

	return Result{
		Status:      StatusConfirmed,
		Booking:     booking,
		Price:       price,
		BookedCount: admit.BookedCount,
		Capacity:    admit.Capacity,
	}, nil
}

// ConfigureSlot меняет вместимость и цену слота под блокировкой даты.
func (c *Controller) ConfigureSlot(
	ctx context.Context,
	key model.SlotKey,
	capacity int,
	customPriceCents *int64,
) (*model.SlotState, error) {
	key, err := NewSlotKey(key.CharterID, key.Date, string(key.Slot))
	if err != nil {
		return nil, err
	}

	unlock, err := c.locker.Acquire(ctx, lock.DateKey(key.CharterID, key.Date))
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	defer unlock()

	state, err := c.slots.SetCapacity(ctx, key, capacity, customPriceCents)
	if err != nil {
		return nil, err
	}

	c.logger.Info("slot configured",
		zap.String("slot_key", key.String()),
		zap.Int("capacity", state.Capacity),
		zap.Int("booked", state.BookedCount),
	)
	c.publisher.Publish(ctx, notify.Change{
		Type:      model.ChangeCapacityChanged,
		CharterID: key.CharterID,
		Date:      key.Date,
		Slot:      key.Slot,
	})
	return state, nil
}

func (c *Controller) resolvePrice(ctx context.Context, charter *model.Charter, state *model.SlotState) (pricing.Decision, error) {
	if state.CustomPriceCents != nil {
		return pricing.SlotOverride(*state.CustomPriceCents, charter.BasePriceCents), nil
	}
	return c.pricer.ResolvePrice(ctx, charter.ID, state.Date, charter.BasePriceCents)
}

// insert пишет бронирование с повтором. Конфликт по ключу означает, что
// запись уже есть (наша прошлая попытка или параллельный повтор).
func (c *Controller) insert(ctx context.Context, log *zap.Logger, b *model.Booking) (*model.Booking, error) {
	var err error
	for attempt := 1; attempt <= c.ledgerAttempts; attempt++ {
		err = c.ledger.InsertConfirmed(ctx, b)
		if err == nil {
			return b, nil
		}
		if errors.Is(err, model.ErrDuplicateBooking) {
			existing, lookupErr := c.ledger.GetByIdempotencyKey(ctx, b.IdempotencyKey)
			if lookupErr == nil {
				return existing, nil
			}
			err = fmt.Errorf("%w (lookup: %v)", err, lookupErr)
		}
		log.Warn("ledger write failed", zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, err
}

// compensate возвращает места после неудачной записи в журнал.
func (c *Controller) compensate(ctx context.Context, log *zap.Logger, key model.SlotKey, units int, cause error) {
	if _, err := c.slots.Release(context.WithoutCancel(ctx), key, units); err != nil {
		log.Error("compensating release failed",
			zap.Bool("fatal", true),
			zap.Error(err),
			zap.NamedError("cause", cause),
		)
		return
	}
	log.Error("admission rolled back after ledger failure",
		zap.Bool("fatal", true),
		zap.Error(cause),
	)
}

// NewSlotKey проверяет дату и слот и приводит их к каноничному виду.
func NewSlotKey(charterID uuid.UUID, date, slot string) (model.SlotKey, error) {
	if charterID == uuid.Nil {
		return model.SlotKey{}, calendar.ErrInvalidCharterID
	}
	d, err := calendar.NormalizeDate(date)
	if err != nil {
		return model.SlotKey{}, err
	}
	s, err := model.ParseTimeSlot(slot)
	if err != nil {
		return model.SlotKey{}, err
	}
	return model.SlotKey{CharterID: charterID, Date: d, Slot: s}, nil
}
