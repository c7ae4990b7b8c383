package calendar

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/Leganyst/charter-booking/internal/model"
)

// Ошибки проверки капитана.
var (
	ErrInvalidCaptainID = errors.New("invalid captain id")
	ErrInvalidCharterID = errors.New("invalid charter id")
)

// Источник данных о чартерах.
// В реале это репозиторий на GORM, в тестах: фейк.
type CharterStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Charter, error)
}

// ValidateCaptain:
//   - проверяет идентификаторы;
//   - достаёт чартер из хранилища;
//   - убеждается, что календарь принадлежит капитану.
func ValidateCaptain(
	ctx context.Context,
	store CharterStore,
	captainID, charterID uuid.UUID,
) (*model.Charter, error) {
	if captainID == uuid.Nil {
		return nil, ErrInvalidCaptainID
	}
	if charterID == uuid.Nil {
		return nil, ErrInvalidCharterID
	}

	c, err := store.GetByID(ctx, charterID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, model.ErrNotFound
	}

	if c.CaptainID != captainID {
		return nil, model.ErrNotCharterCaptain
	}

	return c, nil
}
