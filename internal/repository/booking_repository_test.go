package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Leganyst/charter-booking/internal/model"
)

func newBooking(charterID uuid.UUID, date string, slot model.TimeSlot, key string) *model.Booking {
	return &model.Booking{
		CharterID:       charterID,
		Date:            date,
		Slot:            slot,
		GuestCount:      2,
		AmountPaidCents: 100000,
		IdempotencyKey:  key,
	}
}

func TestGormBookingRepository_InsertAndGet(t *testing.T) {
	gdb := newTestDB(t)
	charter := createCharter(t, gdb)
	repo := NewGormBookingRepository(gdb)
	ctx := context.Background()

	b := newBooking(charter.ID, "2025-07-10", model.TimeSlotMorning, "req-1")
	require.NoError(t, repo.InsertConfirmed(ctx, b))
	assert.NotEqual(t, uuid.Nil, b.ID)
	assert.Equal(t, model.BookingStatusConfirmed, b.Status)

	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "req-1", got.IdempotencyKey)

	got, err = repo.GetByIdempotencyKey(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestGormBookingRepository_DuplicateIdempotencyKey(t *testing.T) {
	gdb := newTestDB(t)
	charter := createCharter(t, gdb)
	repo := NewGormBookingRepository(gdb)
	ctx := context.Background()

	require.NoError(t, repo.InsertConfirmed(ctx, newBooking(charter.ID, "2025-07-10", model.TimeSlotMorning, "same")))
	err := repo.InsertConfirmed(ctx, newBooking(charter.ID, "2025-07-11", model.TimeSlotMorning, "same"))
	assert.ErrorIs(t, err, model.ErrDuplicateBooking)
}

func TestGormBookingRepository_MarkCancelled(t *testing.T) {
	gdb := newTestDB(t)
	charter := createCharter(t, gdb)
	repo := NewGormBookingRepository(gdb)
	ctx := context.Background()

	b := newBooking(charter.ID, "2025-07-10", model.TimeSlotMorning, "req-1")
	require.NoError(t, repo.InsertConfirmed(ctx, b))

	require.NoError(t, repo.MarkCancelled(ctx, b.ID, "weather"))

	got, err := repo.GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, got.Status)
	assert.Equal(t, "weather", got.Comment)
	assert.NotNil(t, got.CancelledAt)

	assert.ErrorIs(t, repo.MarkCancelled(ctx, b.ID, "again"), model.ErrBookingNotActive)
	assert.ErrorIs(t, repo.MarkCancelled(ctx, uuid.New(), ""), model.ErrNotFound)
}

func TestGormBookingRepository_FindConfirmedBookings(t *testing.T) {
	gdb := newTestDB(t)
	charter := createCharter(t, gdb)
	other := createCharter(t, gdb)
	repo := NewGormBookingRepository(gdb)
	ctx := context.Background()

	keep := newBooking(charter.ID, "2025-07-10", model.TimeSlotMorning, "a")
	cancelled := newBooking(charter.ID, "2025-07-11", model.TimeSlotMorning, "b")
	outside := newBooking(charter.ID, "2025-07-20", model.TimeSlotMorning, "c")
	foreign := newBooking(other.ID, "2025-07-10", model.TimeSlotMorning, "d")
	for _, b := range []*model.Booking{keep, cancelled, outside, foreign} {
		require.NoError(t, repo.InsertConfirmed(ctx, b))
	}
	require.NoError(t, repo.MarkCancelled(ctx, cancelled.ID, ""))

	got, err := repo.FindConfirmedBookings(ctx, charter.ID, "2025-07-09", "2025-07-15")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, keep.ID, got[0].ID)
}

func TestGormBookingRepository_ListByCharterRange(t *testing.T) {
	gdb := newTestDB(t)
	charter := createCharter(t, gdb)
	repo := NewGormBookingRepository(gdb)
	ctx := context.Background()

	for i, d := range []string{"2025-07-10", "2025-07-11", "2025-07-12"} {
		require.NoError(t, repo.InsertConfirmed(ctx, newBooking(charter.ID, d, model.TimeSlotMorning, "k"+string(rune('0'+i)))))
	}

	page, total, err := repo.ListByCharterRange(ctx, charter.ID, "2025-07-01", "2025-07-31", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "2025-07-10", page[0].Date)

	page, _, err = repo.ListByCharterRange(ctx, charter.ID, "2025-07-01", "2025-07-31", 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "2025-07-12", page[0].Date)
}
