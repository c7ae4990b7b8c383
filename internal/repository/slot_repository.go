package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/charter-booking/internal/model"
)

// AdmitResult: итог попытки занять места в слоте.
// Admitted=false означает, что слот заполнен.
type AdmitResult struct {
	Admitted    bool
	BookedCount int
	Capacity    int
}

// SlotRepository: единственный владелец счётчика booked_count.
type SlotRepository interface {
	// Состояние слота или значение по умолчанию (без записи в БД).
	GetOrDefault(ctx context.Context, key model.SlotKey) (*model.SlotState, error)
	// Изменить вместимость и персональную цену слота.
	SetCapacity(ctx context.Context, key model.SlotKey, capacity int, customPriceCents *int64) (*model.SlotState, error)
	// Атомарно занять units мест, если они есть.
	TryAdmit(ctx context.Context, key model.SlotKey, units int) (AdmitResult, error)
	// Вернуть units мест.
	Release(ctx context.Context, key model.SlotKey, units int) (*model.SlotState, error)
	// Сохранённые состояния чартера за диапазон дат.
	ListByCharterRange(ctx context.Context, charterID uuid.UUID, from, to string) ([]model.SlotState, error)
}

type SlotRepositoryOption func(*GormSlotRepository)

func WithDefaultCapacity(n int) SlotRepositoryOption {
	return func(r *GormSlotRepository) {
		if n > 0 {
			r.defaultCapacity = n
		}
	}
}

// WithMaxAdmitAttempts ограничивает число повторов TryAdmit при гонке.
func WithMaxAdmitAttempts(n int) SlotRepositoryOption {
	return func(r *GormSlotRepository) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

type GormSlotRepository struct {
	db              *gorm.DB
	defaultCapacity int
	maxAttempts     int
}

func NewGormSlotRepository(db *gorm.DB, opts ...SlotRepositoryOption) *GormSlotRepository {
	r := &GormSlotRepository{
		db:              db,
		defaultCapacity: model.DefaultSlotCapacity,
		maxAttempts:     3,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *GormSlotRepository) GetOrDefault(ctx context.Context, key model.SlotKey) (*model.SlotState, error) {
	s, err := r.find(r.db.WithContext(ctx), key)
	if errors.Is(err, model.ErrNotFound) {
		return r.defaultState(key), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get slot %s: %w", key, err)
	}
	return s, nil
}

func (r *GormSlotRepository) SetCapacity(
	ctx context.Context,
	key model.SlotKey,
	capacity int,
	customPriceCents *int64,
) (*model.SlotState, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: capacity %d must be at least 1", model.ErrInvalidCapacity, capacity)
	}
	if customPriceCents != nil && *customPriceCents < 0 {
		return nil, fmt.Errorf("%w: negative custom price", model.ErrInvalidCapacity)
	}

	var price any
	if customPriceCents != nil {
		price = *customPriceCents
	}

	var state *model.SlotState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.ensure(tx, key); err != nil {
			return err
		}

		// Нельзя ужать слот ниже уже забронированных гостей.
		upd := r.byKey(tx.Model(&model.SlotState{}), key).
			Where("booked_count <= ?", capacity).
			Updates(map[string]any{
				"capacity":           capacity,
				"custom_price_cents": price,
			})
		if upd.Error != nil {
			return upd.Error
		}

		current, err := r.find(tx, key)
		if err != nil {
			return err
		}
		if upd.RowsAffected == 0 {
			return fmt.Errorf("%w: capacity %d below booked count %d",
				model.ErrInvalidCapacity, capacity, current.BookedCount)
		}
		state = current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set capacity %s: %w", key, err)
	}
	return state, nil
}

func (r *GormSlotRepository) TryAdmit(ctx context.Context, key model.SlotKey, units int) (AdmitResult, error) {
	if units < 1 {
		return AdmitResult{}, fmt.Errorf("try admit %s: units must be positive, got %d", key, units)
	}

	db := r.db.WithContext(ctx)
	if err := r.ensure(db, key); err != nil {
		return AdmitResult{}, fmt.Errorf("try admit %s: %w", key, err)
	}

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		var (
			res   AdmitResult
			retry bool
		)
		err := db.Transaction(func(tx *gorm.DB) error {
			// Проверка вместимости и инкремент: одним условным UPDATE.
			upd := r.byKey(tx.Model(&model.SlotState{}), key).
				Where("booked_count + ? <= capacity", units).
				Update("booked_count", gorm.Expr("booked_count + ?", units))
			if upd.Error != nil {
				return upd.Error
			}

			state, err := r.find(tx, key)
			if err != nil {
				return err
			}

			res = AdmitResult{
				Admitted:    upd.RowsAffected == 1,
				BookedCount: state.BookedCount,
				Capacity:    state.Capacity,
			}
			// Между UPDATE и чтением место освободилось: пробуем ещё раз.
			retry = !res.Admitted && state.BookedCount+units <= state.Capacity
			return nil
		})
		if err != nil {
			return AdmitResult{}, fmt.Errorf("try admit %s: %w", key, err)
		}
		if !retry {
			return res, nil
		}
	}

	return AdmitResult{}, fmt.Errorf("try admit %s after %d attempts: %w", key, r.maxAttempts, model.ErrContention)
}

func (r *GormSlotRepository) Release(ctx context.Context, key model.SlotKey, units int) (*model.SlotState, error) {
	if units < 1 {
		return nil, fmt.Errorf("release %s: units must be positive, got %d", key, units)
	}

	var state *model.SlotState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upd := r.byKey(tx.Model(&model.SlotState{}), key).
			Where("booked_count >= ?", units).
			Update("booked_count", gorm.Expr("booked_count - ?", units))
		if upd.Error != nil {
			return upd.Error
		}
		// Счётчик не уходит в минус и не «прижимается» к нулю.
		if upd.RowsAffected == 0 {
			return model.ErrUnderflow
		}

		s, err := r.find(tx, key)
		if err != nil {
			return err
		}
		state = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("release %s by %d: %w", key, units, err)
	}
	return state, nil
}

func (r *GormSlotRepository) ListByCharterRange(
	ctx context.Context,
	charterID uuid.UUID,
	from, to string,
) ([]model.SlotState, error) {
	var states []model.SlotState
	if err := r.db.WithContext(ctx).
		Where("charter_id = ?", charterID).
		Where("slot_date >= ? AND slot_date <= ?", from, to).
		Order("slot_date ASC, time_slot ASC").
		Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

func (r *GormSlotRepository) defaultState(key model.SlotKey) *model.SlotState {
	return &model.SlotState{
		CharterID: key.CharterID,
		Date:      key.Date,
		Slot:      key.Slot,
		Capacity:  r.defaultCapacity,
	}
}

// ensure лениво создаёт строку слота с вместимостью по умолчанию.
func (r *GormSlotRepository) ensure(tx *gorm.DB, key model.SlotKey) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "charter_id"}, {Name: "slot_date"}, {Name: "time_slot"}},
		DoNothing: true,
	}).Create(r.defaultState(key)).Error
}

func (r *GormSlotRepository) byKey(tx *gorm.DB, key model.SlotKey) *gorm.DB {
	return tx.Where("charter_id = ? AND slot_date = ? AND time_slot = ?", key.CharterID, key.Date, key.Slot)
}

func (r *GormSlotRepository) find(tx *gorm.DB, key model.SlotKey) (*model.SlotState, error) {
	var s model.SlotState
	if err := r.byKey(tx, key).Take(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}
