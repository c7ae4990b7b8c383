package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type redisPubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisBridge связывает нотификаторы нескольких инстансов через Redis pub/sub.
// Локальные изменения уходят в канал с меткой инстанса, чужие из канала
// публикуются локально и обратно не пересылаются.
type RedisBridge struct {
	client  redisPubSub
	channel string
	origin  string
	local   Publisher
	logger  *zap.Logger
}

func NewRedisBridge(client redis.UniversalClient, channel, origin string, local Publisher, logger *zap.Logger) *RedisBridge {
	return &RedisBridge{
		client:  client,
		channel: channel,
		origin:  origin,
		local:   local,
		logger:  logger,
	}
}

// Forward: обработчик подписки: отправляет локальное изменение в Redis.
func (b *RedisBridge) Forward(ctx context.Context, c Change) error {
	if c.Origin != "" {
		return nil
	}
	c.Origin = b.origin

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", b.channel, err)
	}
	return nil
}

// Listen читает канал до отмены ctx.
func (b *RedisBridge) Listen(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("listening for remote availability changes", zap.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handleMessage(ctx, msg.Payload)
		}
	}
}

func (b *RedisBridge) handleMessage(ctx context.Context, payload string) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		b.logger.Warn("bad change payload", zap.String("channel", b.channel), zap.Error(err))
		return
	}
	if c.Origin == b.origin || c.Origin == "" {
		return
	}
	b.local.Publish(ctx, c)
}
