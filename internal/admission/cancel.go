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
	"github.com/Leganyst/charter-booking/internal/refund"
)

type CancelResult struct {
	Booking *model.Booking
	Refund  refund.Quote
	Slot    *model.SlotState
}

// Cancel отменяет подтверждённое бронирование и возвращает места в слот.
// Сумма возврата считается на момент now. Сначала освобождаются места, потом
// бронирование помечается отменённым; если отметка не записалась, места
// занимаются обратно и бронирование остаётся активным.
func (c *Controller) Cancel(ctx context.Context, bookingID uuid.UUID, now time.Time, reason string) (CancelResult, error) {
	b, err := c.ledger.GetByID(ctx, bookingID)
	if err != nil {
		return CancelResult{}, err
	}

	key := b.Key()
	log := c.logger.With(zap.String("booking_id", b.ID.String()), zap.String("slot_key", key.String()))

	unlock, err := c.locker.Acquire(ctx, lock.DateKey(key.CharterID, key.Date))
	if err != nil {
		return CancelResult{}, fmt.Errorf("lock %s: %w", key, err)
	}
	defer unlock()

	// Статус перечитываем под блокировкой: параллельная отмена уже могла пройти.
	b, err = c.activeBooking(ctx, bookingID)
	if err != nil {
		return CancelResult{}, err
	}
	quote, err := c.quote(b, now)
	if err != nil {
		return CancelResult{}, err
	}

	state, err := c.slots.Release(context.WithoutCancel(ctx), key, b.GuestCount)
	if err != nil {
		if errors.Is(err, model.ErrUnderflow) {
			log.Error("slot counter below cancelled booking: ledger and slot state diverged",
				zap.Bool("fatal", true),
				zap.Int("guests", b.GuestCount),
			)
		} else {
			log.Error("release before cancel failed", zap.Error(err))
		}
		return CancelResult{}, err
	}

	if err := c.ledger.MarkCancelled(ctx, b.ID, reason); err != nil {
		c.restore(ctx, log, key, b.GuestCount, err)
		return CancelResult{}, err
	}

	cancelledAt := now
	b.Status = model.BookingStatusCancelled
	b.CancelledAt = &cancelledAt
	b.Comment = reason

	log.Info("booking cancelled",
		zap.Int("refund_percent", quote.RefundPercent),
		zap.Int64("refund_cents", quote.RefundCents),
	)
	c.publisher.Publish(ctx, notify.Change{
		Type:      model.ChangeBookingReleased,
		CharterID: key.CharterID,
		Date:      key.Date,
		Slot:      key.Slot,
	})

	return CancelResult{Booking: b, Refund: quote, Slot: state}, nil
}

// QuoteRefund: сколько вернём, если отменить сейчас. Ничего не меняет.
func (c *Controller) QuoteRefund(ctx context.Context, bookingID uuid.UUID, now time.Time) (refund.Quote, error) {
	b, err := c.activeBooking(ctx, bookingID)
	if err != nil {
		return refund.Quote{}, err
	}
	return c.quote(b, now)
}

type RescheduleRequest struct {
	BookingID uuid.UUID
	Date      string
	Slot      model.TimeSlot
	Now       time.Time
}

type RescheduleResult struct {
	Admission Result
	Fee       refund.RescheduleQuote
	Previous  *model.Booking
}

// Reschedule переносит бронирование: сначала допуск в новый слот с той же
// суммой, затем отмена старого. Если новый слот не принял, старое остаётся.
func (c *Controller) Reschedule(ctx context.Context, req RescheduleRequest) (RescheduleResult, error) {
	old, err := c.ledger.GetByID(ctx, req.BookingID)
	if err != nil {
		return RescheduleResult{}, err
	}

	target, err := NewSlotKey(old.CharterID, req.Date, string(req.Slot))
	if err != nil {
		return RescheduleResult{}, err
	}
	if target == old.Key() {
		return RescheduleResult{}, fmt.Errorf("%w: booking is already in %s", model.ErrInvalidSlot, target)
	}

	idemKey := "reschedule:" + old.ID.String()
	if old.Status != model.BookingStatusConfirmed {
		// Повтор уже выполненного переноса отдаёт новое бронирование.
		moved, err := c.ledger.GetByIdempotencyKey(ctx, idemKey)
		if err != nil || moved.Status != model.BookingStatusConfirmed {
			return RescheduleResult{}, fmt.Errorf("booking %s: %w", old.ID, model.ErrBookingNotActive)
		}
		res, err := replayOf(moved, target, old.GuestCount)
		if err != nil {
			return RescheduleResult{}, err
		}
		return RescheduleResult{Admission: res, Previous: old}, nil
	}

	eventAt, err := calendar.SlotStart(old.Date, old.Slot, c.loc)
	if err != nil {
		return RescheduleResult{}, err
	}
	fee := refund.ComputeRescheduleFee(eventAt, req.Now)

	amount := old.AmountPaidCents
	res, err := c.admit(ctx, Request{
		CharterID:      old.CharterID,
		CustomerID:     old.CustomerID,
		Date:           target.Date,
		Slot:           target.Slot,
		GuestCount:     old.GuestCount,
		IdempotencyKey: idemKey,
	}, &amount)
	if err != nil || !res.Confirmed() {
		return RescheduleResult{Admission: res, Fee: fee, Previous: old}, err
	}

	cancelled, err := c.Cancel(ctx, old.ID, req.Now, "rescheduled to "+res.Booking.ID.String())
	if err != nil {
		if res.Replayed && errors.Is(err, model.ErrBookingNotActive) {
			return RescheduleResult{Admission: res, Fee: fee, Previous: old}, nil
		}
		c.logger.Error("old booking not released after reschedule",
			zap.String("booking_id", old.ID.String()),
			zap.String("new_booking_id", res.Booking.ID.String()),
			zap.Error(err),
		)
		return RescheduleResult{Admission: res, Fee: fee, Previous: old}, err
	}

	c.logger.Info("booking rescheduled",
		zap.String("booking_id", old.ID.String()),
		zap.String("new_booking_id", res.Booking.ID.String()),
		zap.Int64("fee_cents", fee.FeeCents),
	)
	return RescheduleResult{Admission: res, Fee: fee, Previous: cancelled.Booking}, nil
}

// restore занимает обратно места, освобождённые отменой, которая не записалась.
// Блокировка даты ещё у нас, поэтому места никто не успел занять.
func (c *Controller) restore(ctx context.Context, log *zap.Logger, key model.SlotKey, units int, cause error) {
	res, err := c.slots.TryAdmit(context.WithoutCancel(ctx), key, units)
	if err != nil || !res.Admitted {
		log.Error("slot not restored after failed cancel",
			zap.Bool("fatal", true),
			zap.Int("guests", units),
			zap.Error(err),
			zap.NamedError("cause", cause),
		)
		return
	}
	log.Warn("cancel rolled back", zap.Error(cause))
}

func (c *Controller) activeBooking(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	b, err := c.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != model.BookingStatusConfirmed {
		return nil, fmt.Errorf("booking %s is %s: %w", id, b.Status, model.ErrBookingNotActive)
	}
	return b, nil
}

func (c *Controller) quote(b *model.Booking, now time.Time) (refund.Quote, error) {
	eventAt, err := calendar.SlotStart(b.Date, b.Slot, c.loc)
	if err != nil {
		return refund.Quote{}, err
	}
	return refund.ComputeRefund(eventAt, now, b.AmountPaidCents), nil
}
