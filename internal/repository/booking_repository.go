package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/charter-booking/internal/model"
)

// BookingRepository: журнал бронирований.
type BookingRepository interface {
	// Подтверждённые бронирования чартера в диапазоне дат (включительно).
	FindConfirmedBookings(ctx context.Context, charterID uuid.UUID, from, to string) ([]model.Booking, error)
	// Записать подтверждённое бронирование. Повтор с тем же ключом идемпотентности
	// возвращает model.ErrDuplicateBooking.
	InsertConfirmed(ctx context.Context, booking *model.Booking) error
	// Отменить бронирование.
	MarkCancelled(ctx context.Context, id uuid.UUID, comment string) error
	// Получить бронирование по ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error)
	// Получить бронирование по ключу идемпотентности.
	GetByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error)
	// Бронирования чартера за период с пагинацией.
	ListByCharterRange(
		ctx context.Context,
		charterID uuid.UUID,
		from, to string,
		limit, offset int,
	) ([]model.Booking, int64, error)
}

// Реализация на GORM.
type GormBookingRepository struct {
	db *gorm.DB
}

func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

func (r *GormBookingRepository) FindConfirmedBookings(
	ctx context.Context,
	charterID uuid.UUID,
	from, to string,
) ([]model.Booking, error) {
	var bookings []model.Booking
	if err := r.db.WithContext(ctx).
		Where("charter_id = ?", charterID).
		Where("slot_date >= ? AND slot_date <= ?", from, to).
		Where("status = ?", model.BookingStatusConfirmed).
		Order("slot_date ASC, time_slot ASC").
		Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *GormBookingRepository) InsertConfirmed(ctx context.Context, booking *model.Booking) error {
	booking.Status = model.BookingStatusConfirmed
	if err := r.db.WithContext(ctx).Create(booking).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("insert booking %q: %w", booking.IdempotencyKey, model.ErrDuplicateBooking)
		}
		return fmt.Errorf("insert booking %q: %w", booking.IdempotencyKey, err)
	}
	return nil
}

func (r *GormBookingRepository) MarkCancelled(ctx context.Context, id uuid.UUID, comment string) error {
	now := r.db.NowFunc()
	res := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("id = ?", id).
		Where("status IN ?", []model.BookingStatus{model.BookingStatusPending, model.BookingStatusConfirmed}).
		Updates(map[string]any{
			"status":       model.BookingStatusCancelled,
			"cancelled_at": now,
			"comment":      comment,
		})
	if res.Error != nil {
		return fmt.Errorf("cancel booking %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return fmt.Errorf("cancel booking %s: %w", id, err)
		}
		return fmt.Errorf("cancel booking %s: %w", id, model.ErrBookingNotActive)
	}
	return nil
}

func (r *GormBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Booking, error) {
	var b model.Booking
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *GormBookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*model.Booking, error) {
	var b model.Booking
	if err := r.db.WithContext(ctx).First(&b, "idempotency_key = ?", key).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func (r *GormBookingRepository) ListByCharterRange(
	ctx context.Context,
	charterID uuid.UUID,
	from, to string,
	limit, offset int,
) ([]model.Booking, int64, error) {
	var (
		bookings []model.Booking
		total    int64
	)

	q := r.db.WithContext(ctx).
		Model(&model.Booking{}).
		Where("charter_id = ?", charterID).
		Where("slot_date >= ? AND slot_date <= ?", from, to)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	if err := q.Order("slot_date ASC, time_slot ASC").Find(&bookings).Error; err != nil {
		return nil, 0, err
	}

	return bookings, total, nil
}
