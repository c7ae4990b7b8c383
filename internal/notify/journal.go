package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/Leganyst/charter-booking/internal/model"
)

type EventStore interface {
	Append(ctx context.Context, e *model.AvailabilityEvent) error
}

// Journal сохраняет изменения в availability_events.
// Подписывать с фильтром LocalOnly: чужие изменения журналирует их инстанс.
func Journal(store EventStore) Handler {
	return func(ctx context.Context, c Change) error {
		payload, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("marshal change: %w", err)
		}

		return store.Append(ctx, &model.AvailabilityEvent{
			Seq:        c.Seq,
			ChangeType: c.Type,
			CharterID:  c.CharterID,
			Date:       c.Date,
			Slot:       c.Slot,
			Origin:     c.Origin,
			Payload:    datatypes.JSON(payload),
			CreatedAt:  c.OccurredAt,
		})
	}
}
