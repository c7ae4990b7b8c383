// Package dispatch передаёт изменения доступности внешнему диспетчеру
// уведомлений через очередь asynq.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/Leganyst/charter-booking/internal/notify"
)

const TypeAvailabilityChanged = "availability:changed"

// Enqueuer: часть asynq.Client, нужная форвардеру.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AvailabilityPayload: тело задачи для диспетчера.
type AvailabilityPayload struct {
	Seq        uint64 `json:"seq"`
	Type       string `json:"type"`
	CharterID  string `json:"charter_id"`
	Date       string `json:"date"`
	Slot       string `json:"slot,omitempty"`
	OccurredAt int64  `json:"occurred_at"`
}

func NewAvailabilityTask(c notify.Change) (*asynq.Task, error) {
	b, err := json.Marshal(AvailabilityPayload{
		Seq:        c.Seq,
		Type:       string(c.Type),
		CharterID:  c.CharterID.String(),
		Date:       c.Date,
		Slot:       string(c.Slot),
		OccurredAt: c.OccurredAt.Unix(),
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAvailabilityChanged, b), nil
}

type Forwarder struct {
	client   Enqueuer
	queue    string
	maxRetry int
	instance string
	logger   *zap.Logger
}

// NewForwarder: instance различает seq разных инстансов в TaskID.
func NewForwarder(client Enqueuer, queue string, maxRetry int, instance string, logger *zap.Logger) *Forwarder {
	return &Forwarder{
		client:   client,
		queue:    queue,
		maxRetry: maxRetry,
		instance: instance,
		logger:   logger,
	}
}

// Handle: обработчик подписки нотификатора.
func (f *Forwarder) Handle(ctx context.Context, c notify.Change) error {
	task, err := NewAvailabilityTask(c)
	if err != nil {
		return fmt.Errorf("build task: %w", err)
	}

	// Повторная доставка того же изменения не создаёт вторую задачу.
	taskID := fmt.Sprintf("%s:%s:%d", TypeAvailabilityChanged, f.instance, c.Seq)

	info, err := f.client.EnqueueContext(ctx, task,
		asynq.Queue(f.queue),
		asynq.MaxRetry(f.maxRetry),
		asynq.TaskID(taskID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", taskID, err)
	}

	f.logger.Debug("availability change enqueued",
		zap.String("task_id", info.ID),
		zap.String("queue", info.Queue),
		zap.String("key", c.Key()),
	)
	return nil
}
