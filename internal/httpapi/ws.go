package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Leganyst/charter-booking/internal/notify"
)

// Subscriber: подписка на изменения доступности.
type Subscriber interface {
	Subscribe(name string, filter notify.Filter, h notify.Handler) func()
}

// Hub отдаёт изменения календаря чартера открытым WebSocket-соединениям.
// Каждое соединение: отдельный подписчик: медленный клиент не задерживает других.
type Hub struct {
	subscriber Subscriber
	upgrader   websocket.Upgrader
	writeWait  time.Duration
	logger     *zap.Logger
}

func NewHub(subscriber Subscriber, bufferSize int, writeWait time.Duration, checkOrigin func(*http.Request) bool, logger *zap.Logger) *Hub {
	return &Hub{
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  bufferSize,
			WriteBufferSize: bufferSize,
			CheckOrigin:     checkOrigin,
		},
		writeWait: writeWait,
		logger:    logger,
	}
}

// Serve: GET /api/charters/:id/ws.
func (h *Hub) Serve(c *gin.Context) {
	charterID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "charter id is invalid"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger.With(zap.String("charter_id", charterID.String()), zap.String("remote", c.ClientIP()))
	log.Debug("websocket connected")

	// Пишет только горутина доставки нотификатора: один писатель на соединение.
	unsubscribe := h.subscriber.Subscribe("ws:"+charterID.String(), notify.ForCharter(charterID),
		func(_ context.Context, ch notify.Change) error {
			if err := conn.SetWriteDeadline(time.Now().Add(h.writeWait)); err != nil {
				return err
			}
			return conn.WriteJSON(ch)
		})
	defer unsubscribe()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	log.Debug("websocket disconnected")
}
