package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Leganyst/charter-booking/internal/blackout"
	"github.com/Leganyst/charter-booking/internal/calendar"
	"github.com/Leganyst/charter-booking/internal/db"
	"github.com/Leganyst/charter-booking/internal/lock"
	"github.com/Leganyst/charter-booking/internal/model"
	"github.com/Leganyst/charter-booking/internal/notify"
	"github.com/Leganyst/charter-booking/internal/pricing"
	"github.com/Leganyst/charter-booking/internal/repository"
)

const tripDate = "2025-07-10"

type recordingPublisher struct {
	mu      sync.Mutex
	changes []notify.Change
}

func (p *recordingPublisher) Publish(_ context.Context, c notify.Change) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, c)
}

func (p *recordingPublisher) types() []model.ChangeType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.ChangeType, 0, len(p.changes))
	for _, c := range p.changes {
		out = append(out, c.Type)
	}
	return out
}

// flakyLedger роняет первые failures вставок.
type flakyLedger struct {
	*repository.GormBookingRepository

	mu       sync.Mutex
	failures   int
	inserts    int
	failCancel bool
}

func (l *flakyLedger) InsertConfirmed(ctx context.Context, b *model.Booking) error {
	l.mu.Lock()
	l.inserts++
	fail := l.failures != 0
	if l.failures > 0 {
		l.failures--
	}
	l.mu.Unlock()

	if fail {
		return errors.New("connection reset by peer")
	}
	return l.GormBookingRepository.InsertConfirmed(ctx, b)
}

func (l *flakyLedger) MarkCancelled(ctx context.Context, id uuid.UUID, comment string) error {
	l.mu.Lock()
	fail := l.failCancel
	l.mu.Unlock()

	if fail {
		return errors.New("database is locked")
	}
	return l.GormBookingRepository.MarkCancelled(ctx, id, comment)
}

func (l *flakyLedger) setFailCancel(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failCancel = v
}

// flakySlots роняет Release, пока failRelease включён.
type flakySlots struct {
	*repository.GormSlotRepository

	mu          sync.Mutex
	failRelease bool
}

func (s *flakySlots) Release(ctx context.Context, key model.SlotKey, units int) (*model.SlotState, error) {
	s.mu.Lock()
	fail := s.failRelease
	s.mu.Unlock()

	if fail {
		return nil, errors.New("database is locked")
	}
	return s.GormSlotRepository.Release(ctx, key, units)
}

func (s *flakySlots) setFailRelease(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRelease = v
}

// hookedCharters вызывает beforeGet перед каждым чтением чартера.
type hookedCharters struct {
	*repository.GormCharterRepository

	beforeGet func()
}

func (h *hookedCharters) GetByID(ctx context.Context, id uuid.UUID) (*model.Charter, error) {
	if h.beforeGet != nil {
		h.beforeGet()
	}
	return h.GormCharterRepository.GetByID(ctx, id)
}

type env struct {
	ctrl      *Controller
	slots     *repository.GormSlotRepository
	bookings  *repository.GormBookingRepository
	ledger    *flakyLedger
	slotStore *flakySlots
	charters  *hookedCharters
	rules     *repository.GormSeasonalRuleRepository
	registry  *blackout.Registry
	publisher *recordingPublisher
	charter   *model.Charter
}

func newEnv(t *testing.T) *env {
	t.Helper()

	gdb, err := db.OpenSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := model.AutoMigrate(gdb); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql DB: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	charters := repository.NewGormCharterRepository(gdb)
	charter := &model.Charter{CaptainID: uuid.New(), Name: "Sea Breeze", BasePriceCents: 50000}
	if err := charters.Create(context.Background(), charter); err != nil {
		t.Fatalf("create charter: %v", err)
	}

	e := &env{
		slots:     repository.NewGormSlotRepository(gdb),
		bookings:  repository.NewGormBookingRepository(gdb),
		rules:     repository.NewGormSeasonalRuleRepository(gdb),
		publisher: &recordingPublisher{},
		charter:   charter,
	}
	e.ledger = &flakyLedger{GormBookingRepository: e.bookings}
	e.slotStore = &flakySlots{GormSlotRepository: e.slots}
	e.charters = &hookedCharters{GormCharterRepository: charters}

	locker := lock.NewMemoryLocker(2 * time.Second)
	e.registry = blackout.NewRegistry(
		repository.NewGormBlackoutRepository(gdb), e.bookings, locker, e.publisher, 30, zap.NewNop(),
	)
	e.ctrl = NewController(Deps{
		Slots:     e.slotStore,
		Ledger:    e.ledger,
		Blackouts: e.registry,
		Pricer:    pricing.NewResolver(e.rules),
		Charters:  e.charters,
		Locker:    locker,
		Publisher: e.publisher,
	}, Options{}, zap.NewNop())
	return e
}

func (e *env) request(slot model.TimeSlot, guests int, key string) Request {
	return Request{
		CharterID:      e.charter.ID,
		Date:           tripDate,
		Slot:           slot,
		GuestCount:     guests,
		IdempotencyKey: key,
	}
}

func (e *env) booked(t *testing.T, date string, slot model.TimeSlot) int {
	t.Helper()
	s, err := e.slots.GetOrDefault(context.Background(), model.SlotKey{CharterID: e.charter.ID, Date: date, Slot: slot})
	require.NoError(t, err)
	return s.BookedCount
}

func TestController_AdmitConfirmed(t *testing.T) {
	e := newEnv(t)

	res, err := e.ctrl.Admit(context.Background(), e.request(model.TimeSlotMorning, 3, "req-1"))
	require.NoError(t, err)
	require.True(t, res.Confirmed())
	assert.False(t, res.Replayed)
	assert.Equal(t, pricing.SourceBase, res.Price.Source)
	assert.Equal(t, int64(150000), res.Booking.AmountPaidCents)
	assert.Equal(t, 3, res.BookedCount)
	assert.Equal(t, model.DefaultSlotCapacity, res.Capacity)

	stored, err := e.bookings.GetByIdempotencyKey(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, res.Booking.ID, stored.ID)
	assert.Equal(t, model.BookingStatusConfirmed, stored.Status)

	assert.Equal(t, 3, e.booked(t, tripDate, model.TimeSlotMorning))
	assert.Equal(t, []model.ChangeType{model.ChangeBookingAdmitted}, e.publisher.types())
}

func TestController_AdmitUsesSeasonalPrice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.rules.Create(ctx, &model.SeasonalRule{
		CharterID:       e.charter.ID,
		Name:            "summer",
		StartDate:       "2025-06-01",
		EndDate:         "2025-08-31",
		PriceMultiplier: 1.5,
	}))

	res, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, ""))
	require.NoError(t, err)
	require.True(t, res.Confirmed())
	assert.Equal(t, pricing.SourceMultiplier, res.Price.Source)
	assert.Equal(t, int64(75000), res.Price.PriceCents)
	assert.Equal(t, int64(150000), res.Booking.AmountPaidCents)
	assert.NotEmpty(t, res.Booking.IdempotencyKey)
}

func TestController_AdmitRejectsBlockedDate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.registry.CreateBlock(ctx, blackout.CreateRequest{
		CharterID: e.charter.ID,
		StartDate: "2025-07-09",
		EndDate:   "2025-07-11",
	})
	require.NoError(t, err)

	res, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, ReasonDateBlocked, res.Reason)
	assert.Zero(t, e.booked(t, tripDate, model.TimeSlotMorning))
}

func TestController_AdmitRejectsFullSlot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.ctrl.ConfigureSlot(ctx, model.SlotKey{CharterID: e.charter.ID, Date: tripDate, Slot: model.TimeSlotEvening}, 4, nil)
	require.NoError(t, err)

	res, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotEvening, 3, "a"))
	require.NoError(t, err)
	require.True(t, res.Confirmed())

	res, err = e.ctrl.Admit(ctx, e.request(model.TimeSlotEvening, 2, "b"))
	require.NoError(t, err)
	assert.Equal(t, ReasonSlotFull, res.Reason)
	assert.Equal(t, 3, res.BookedCount)
	assert.Equal(t, 4, res.Capacity)

	_, err = e.bookings.GetByIdempotencyKey(ctx, "b")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestController_AdmitInvalidGuestCount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 0, "zero"))
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidGuestCount, res.Reason)

	res, err = e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, model.DefaultSlotCapacity+1, "too-many"))
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidGuestCount, res.Reason)
	assert.Equal(t, model.DefaultSlotCapacity, res.Capacity)

	assert.Zero(t, e.booked(t, tripDate, model.TimeSlotMorning))
	assert.Empty(t, e.publisher.types())
}

func TestController_AdmitRejectsMalformedRequest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	req := e.request(model.TimeSlotMorning, 2, "")
	req.Slot = "09:30"
	_, err := e.ctrl.Admit(ctx, req)
	assert.ErrorIs(t, err, model.ErrInvalidSlot)

	req = e.request(model.TimeSlotMorning, 2, "")
	req.Date = "10.07.2025"
	_, err = e.ctrl.Admit(ctx, req)
	assert.ErrorIs(t, err, model.ErrInvalidDate)

	req = e.request(model.TimeSlotMorning, 2, "")
	req.CharterID = uuid.New()
	_, err = e.ctrl.Admit(ctx, req)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestController_LedgerFailureReleasesSlot(t *testing.T) {
	e := newEnv(t)
	e.ledger.failures = -1

	res, err := e.ctrl.Admit(context.Background(), e.request(model.TimeSlotMorning, 4, "req-1"))
	require.Error(t, err)
	assert.Equal(t, ReasonInternalError, res.Reason)
	assert.Equal(t, 2, e.ledger.inserts)

	assert.Zero(t, e.booked(t, tripDate, model.TimeSlotMorning))
	assert.Empty(t, e.publisher.types())
}

func TestController_LedgerRetrySucceeds(t *testing.T) {
	e := newEnv(t)
	e.ledger.failures = 1

	res, err := e.ctrl.Admit(context.Background(), e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)
	assert.True(t, res.Confirmed())
	assert.Equal(t, 2, e.ledger.inserts)
	assert.Equal(t, 2, e.booked(t, tripDate, model.TimeSlotMorning))
}

func TestController_AdmitIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	first, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)
	require.True(t, first.Confirmed())

	second, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)
	assert.True(t, second.Confirmed())
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Booking.ID, second.Booking.ID)

	assert.Equal(t, 2, e.booked(t, tripDate, model.TimeSlotMorning))
	assert.Len(t, e.publisher.types(), 1)
}

func TestController_ConcurrentAdmitsRespectCapacity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.ctrl.ConfigureSlot(ctx, model.SlotKey{CharterID: e.charter.ID, Date: tripDate, Slot: model.TimeSlotMorning}, 3, nil)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		confirmed int
		full      int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 1, ""))
			if err != nil {
				t.Errorf("admit: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case res.Confirmed():
				confirmed++
			case res.Reason == ReasonSlotFull:
				full++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, confirmed)
	assert.Equal(t, 7, full)
	assert.Equal(t, 3, e.booked(t, tripDate, model.TimeSlotMorning))
}

func TestController_BlockAfterBookingIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)

	res, err := e.registry.CreateBlock(ctx, blackout.CreateRequest{
		CharterID: e.charter.ID,
		StartDate: "2025-07-01",
		EndDate:   "2025-07-15",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{tripDate}, res.ConflictDates)
}

func TestController_Cancel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	adm, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)
	require.True(t, adm.Confirmed())

	// Ровно 10 суток до отправления.
	now := time.Date(2025, 6, 30, 10, 0, 0, 0, time.UTC)

	quote, err := e.ctrl.QuoteRefund(ctx, adm.Booking.ID, now)
	require.NoError(t, err)
	assert.Equal(t, 10, quote.DaysUntil)
	assert.Equal(t, 100, quote.RefundPercent)

	res, err := e.ctrl.Cancel(ctx, adm.Booking.ID, now, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, int64(100000), res.Refund.RefundCents)
	assert.Equal(t, model.BookingStatusCancelled, res.Booking.Status)
	assert.Zero(t, res.Slot.BookedCount)
	assert.Zero(t, e.booked(t, tripDate, model.TimeSlotMorning))

	stored, err := e.bookings.GetByID(ctx, adm.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, stored.Status)

	_, err = e.ctrl.Cancel(ctx, adm.Booking.ID, now, "again")
	assert.ErrorIs(t, err, model.ErrBookingNotActive)
	_, err = e.ctrl.QuoteRefund(ctx, adm.Booking.ID, now)
	assert.ErrorIs(t, err, model.ErrBookingNotActive)

	assert.Equal(t,
		[]model.ChangeType{model.ChangeBookingAdmitted, model.ChangeBookingReleased},
		e.publisher.types(),
	)
}

func TestController_CancelPartialRefund(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	adm, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 1, "req-1"))
	require.NoError(t, err)

	// 3 дня 22 часа до отправления: округляется до 4 дней.
	now := time.Date(2025, 7, 6, 12, 0, 0, 0, time.UTC)
	res, err := e.ctrl.Cancel(ctx, adm.Booking.ID, now, "")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Refund.DaysUntil)
	assert.Equal(t, 50, res.Refund.RefundPercent)
	assert.Equal(t, int64(25000), res.Refund.RefundCents)
}

func TestController_CancelKeepsBookingWhenReleaseFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 30, 10, 0, 0, 0, time.UTC)

	adm, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)

	e.slotStore.setFailRelease(true)
	_, err = e.ctrl.Cancel(ctx, adm.Booking.ID, now, "")
	require.Error(t, err)

	stored, err := e.bookings.GetByID(ctx, adm.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, stored.Status)
	assert.Equal(t, 2, e.booked(t, tripDate, model.TimeSlotMorning))

	// Повторная отмена после сбоя проходит и освобождает места.
	e.slotStore.setFailRelease(false)
	res, err := e.ctrl.Cancel(ctx, adm.Booking.ID, now, "")
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusCancelled, res.Booking.Status)
	assert.Zero(t, e.booked(t, tripDate, model.TimeSlotMorning))
}

func TestController_CancelRestoresSlotWhenLedgerFails(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 30, 10, 0, 0, 0, time.UTC)

	adm, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)

	e.ledger.setFailCancel(true)
	_, err = e.ctrl.Cancel(ctx, adm.Booking.ID, now, "")
	require.Error(t, err)

	stored, err := e.bookings.GetByID(ctx, adm.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, stored.Status)
	assert.Equal(t, 2, e.booked(t, tripDate, model.TimeSlotMorning))
	assert.Equal(t, []model.ChangeType{model.ChangeBookingAdmitted}, e.publisher.types())

	e.ledger.setFailCancel(false)
	_, err = e.ctrl.Cancel(ctx, adm.Booking.ID, now, "")
	require.NoError(t, err)
	assert.Zero(t, e.booked(t, tripDate, model.TimeSlotMorning))
}

func TestController_ReplayOfCancelledBookingIsDuplicate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	adm, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)
	_, err = e.ctrl.Cancel(ctx, adm.Booking.ID, time.Date(2025, 6, 30, 10, 0, 0, 0, time.UTC), "")
	require.NoError(t, err)

	res, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	assert.ErrorIs(t, err, model.ErrDuplicateBooking)
	assert.False(t, res.Confirmed())
	assert.Zero(t, e.booked(t, tripDate, model.TimeSlotMorning))
}

func TestController_ReplayWithDifferentRequestIsDuplicate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)

	cases := []struct {
		name string
		req  Request
	}{
		{"other slot", e.request(model.TimeSlotEvening, 2, "req-1")},
		{"other guest count", e.request(model.TimeSlotMorning, 3, "req-1")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := e.ctrl.Admit(ctx, tc.req)
			assert.ErrorIs(t, err, model.ErrDuplicateBooking)
			assert.False(t, res.Confirmed())
		})
	}

	assert.Equal(t, 2, e.booked(t, tripDate, model.TimeSlotMorning))
	assert.Zero(t, e.booked(t, tripDate, model.TimeSlotEvening))
}

func TestController_AdmitPricesSlotConfiguredWhileWaiting(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Цена слота меняется между проверкой запроса и блокировкой даты.
	price := int64(40000)
	e.charters.beforeGet = func() {
		e.charters.beforeGet = nil
		_, err := e.ctrl.ConfigureSlot(ctx, model.SlotKey{CharterID: e.charter.ID, Date: tripDate, Slot: model.TimeSlotMorning}, 6, &price)
		require.NoError(t, err)
	}

	res, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)
	require.True(t, res.Confirmed())
	assert.Equal(t, pricing.SourceSlotOverride, res.Price.Source)
	assert.Equal(t, int64(80000), res.Booking.AmountPaidCents)
}

func TestController_Reschedule(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	adm, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)
	require.True(t, adm.Confirmed())

	// В новом слоте цена другая, но сумма переносится без пересчёта.
	price := int64(90000)
	_, err = e.ctrl.ConfigureSlot(ctx, model.SlotKey{CharterID: e.charter.ID, Date: "2025-07-12", Slot: model.TimeSlotAfternoon}, 6, &price)
	require.NoError(t, err)

	req := RescheduleRequest{
		BookingID: adm.Booking.ID,
		Date:      "2025-07-12",
		Slot:      model.TimeSlotAfternoon,
		Now:       time.Date(2025, 7, 5, 10, 0, 0, 0, time.UTC),
	}
	res, err := e.ctrl.Reschedule(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Admission.Confirmed())
	assert.True(t, res.Fee.Free)

	moved := res.Admission.Booking
	assert.Equal(t, "2025-07-12", moved.Date)
	assert.Equal(t, model.TimeSlotAfternoon, moved.Slot)
	assert.Equal(t, adm.Booking.AmountPaidCents, moved.AmountPaidCents)
	assert.Equal(t, model.BookingStatusCancelled, res.Previous.Status)

	assert.Zero(t, e.booked(t, tripDate, model.TimeSlotMorning))
	assert.Equal(t, 2, e.booked(t, "2025-07-12", model.TimeSlotAfternoon))

	// Повтор того же переноса отдаёт уже созданное бронирование.
	again, err := e.ctrl.Reschedule(ctx, req)
	require.NoError(t, err)
	assert.True(t, again.Admission.Replayed)
	assert.Equal(t, moved.ID, again.Admission.Booking.ID)
	assert.Equal(t, 2, e.booked(t, "2025-07-12", model.TimeSlotAfternoon))
}

func TestController_RescheduleReplayAfterMovedBookingCancelled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

	adm, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)

	req := RescheduleRequest{BookingID: adm.Booking.ID, Date: "2025-07-12", Slot: model.TimeSlotAfternoon, Now: now}
	res, err := e.ctrl.Reschedule(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Admission.Confirmed())

	_, err = e.ctrl.Cancel(ctx, res.Admission.Booking.ID, now, "")
	require.NoError(t, err)

	_, err = e.ctrl.Reschedule(ctx, req)
	assert.ErrorIs(t, err, model.ErrBookingNotActive)
	assert.Zero(t, e.booked(t, "2025-07-12", model.TimeSlotAfternoon))
}

func TestController_RescheduleLateChargesFee(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	adm, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 1, "req-1"))
	require.NoError(t, err)

	res, err := e.ctrl.Reschedule(ctx, RescheduleRequest{
		BookingID: adm.Booking.ID,
		Date:      tripDate,
		Slot:      model.TimeSlotEvening,
		Now:       time.Date(2025, 7, 9, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, res.Admission.Confirmed())
	assert.False(t, res.Fee.Free)
	assert.Equal(t, int64(2500), res.Fee.FeeCents)
}

func TestController_RescheduleKeepsOldBookingWhenTargetFull(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	adm, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)

	_, err = e.ctrl.ConfigureSlot(ctx, model.SlotKey{CharterID: e.charter.ID, Date: tripDate, Slot: model.TimeSlotEvening}, 1, nil)
	require.NoError(t, err)

	res, err := e.ctrl.Reschedule(ctx, RescheduleRequest{
		BookingID: adm.Booking.ID,
		Date:      tripDate,
		Slot:      model.TimeSlotEvening,
		Now:       time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidGuestCount, res.Admission.Reason)

	stored, err := e.bookings.GetByID(ctx, adm.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingStatusConfirmed, stored.Status)
	assert.Equal(t, 2, e.booked(t, tripDate, model.TimeSlotMorning))
}

func TestController_RescheduleToSameSlot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	adm, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 1, "req-1"))
	require.NoError(t, err)

	_, err = e.ctrl.Reschedule(ctx, RescheduleRequest{BookingID: adm.Booking.ID, Date: tripDate, Slot: "10:00 AM"})
	assert.ErrorIs(t, err, model.ErrInvalidSlot)
}

func TestController_ConfigureSlot(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 3, "req-1"))
	require.NoError(t, err)

	key := model.SlotKey{CharterID: e.charter.ID, Date: tripDate, Slot: model.TimeSlotMorning}
	_, err = e.ctrl.ConfigureSlot(ctx, key, 2, nil)
	assert.ErrorIs(t, err, model.ErrInvalidCapacity)

	state, err := e.ctrl.ConfigureSlot(ctx, key, 8, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, state.Capacity)
	assert.Equal(t, 3, state.BookedCount)

	assert.Contains(t, e.publisher.types(), model.ChangeCapacityChanged)
}

func TestController_DayAvailability(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.rules.Create(ctx, &model.SeasonalRule{
		CharterID:       e.charter.ID,
		Name:            "summer",
		StartDate:       "2025-06-01",
		EndDate:         "2025-08-31",
		PriceMultiplier: 1.5,
	}))
	price := int64(40000)
	_, err := e.ctrl.ConfigureSlot(ctx, model.SlotKey{CharterID: e.charter.ID, Date: tripDate, Slot: model.TimeSlotAfternoon}, 4, &price)
	require.NoError(t, err)
	_, err = e.ctrl.Admit(ctx, e.request(model.TimeSlotMorning, 2, "req-1"))
	require.NoError(t, err)

	views, err := e.ctrl.DayAvailability(ctx, e.charter.ID, tripDate)
	require.NoError(t, err)
	require.Len(t, views, len(model.TimeSlots))

	bySlot := make(map[model.TimeSlot]SlotView, len(views))
	for _, v := range views {
		bySlot[v.Slot] = v
	}

	morning := bySlot[model.TimeSlotMorning]
	assert.Equal(t, "10:00 AM", morning.Label)
	assert.Equal(t, 2, morning.Booked)
	assert.Equal(t, model.DefaultSlotCapacity-2, morning.Remaining)
	assert.Equal(t, int64(75000), morning.Price.PriceCents)
	assert.True(t, morning.Available())

	afternoon := bySlot[model.TimeSlotAfternoon]
	assert.Equal(t, 4, afternoon.Capacity)
	assert.Equal(t, pricing.SourceSlotOverride, afternoon.Price.Source)
	assert.Equal(t, int64(40000), afternoon.Price.PriceCents)
}

func TestController_DayAvailabilityBlocked(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.registry.CreateBlock(ctx, blackout.CreateRequest{CharterID: e.charter.ID, StartDate: tripDate, EndDate: tripDate})
	require.NoError(t, err)

	views, err := e.ctrl.DayAvailability(ctx, e.charter.ID, tripDate)
	require.NoError(t, err)
	for _, v := range views {
		assert.True(t, v.Blocked)
		assert.False(t, v.Available())
	}
}

func TestNewSlotKey(t *testing.T) {
	id := uuid.New()

	key, err := NewSlotKey(id, "2025-07-10", "2:00 PM")
	require.NoError(t, err)
	assert.Equal(t, model.TimeSlotAfternoon, key.Slot)

	_, err = NewSlotKey(uuid.Nil, "2025-07-10", "14:00")
	assert.ErrorIs(t, err, calendar.ErrInvalidCharterID)
}
