package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Leganyst/charter-booking/internal/model"
	"github.com/Leganyst/charter-booking/internal/notify"
)

// signallingSubscriber сообщает о каждой новой подписке.
type signallingSubscriber struct {
	*notify.Notifier
	subscribed chan struct{}
}

func (s *signallingSubscriber) Subscribe(name string, filter notify.Filter, h notify.Handler) func() {
	unsubscribe := s.Notifier.Subscribe(name, filter, h)
	s.subscribed <- struct{}{}
	return unsubscribe
}

func TestHub_StreamsCharterChanges(t *testing.T) {
	notifier := notify.New(zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = notifier.Close(ctx)
	})

	sub := &signallingSubscriber{Notifier: notifier, subscribed: make(chan struct{}, 1)}
	hub := NewHub(sub, 1024, time.Second, OriginChecker(nil), zap.NewNop())
	r := NewRouter(NewHandler(&fakeService{}), hub, RouterConfig{RateLimitRPS: 100, RateLimitBurst: 100}, zap.NewNop())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	charterID := uuid.New()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/charters/" + charterID.String() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-sub.subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("websocket did not subscribe")
	}

	ctx := context.Background()
	notifier.Publish(ctx, notify.Change{Type: model.ChangeBookingAdmitted, CharterID: uuid.New(), Date: "2025-07-10"})
	notifier.Publish(ctx, notify.Change{Type: model.ChangeBlockCreated, CharterID: charterID, Date: "2025-07-11"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got notify.Change
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, charterID, got.CharterID)
	assert.Equal(t, model.ChangeBlockCreated, got.Type)
	assert.Equal(t, "2025-07-11", got.Date)
	assert.Equal(t, uint64(2), got.Seq)
}

func TestHub_RejectsInvalidCharterID(t *testing.T) {
	hub := NewHub(notify.New(zap.NewNop()), 1024, time.Second, OriginChecker(nil), zap.NewNop())
	r := NewRouter(NewHandler(&fakeService{}), hub, RouterConfig{RateLimitRPS: 100, RateLimitBurst: 100}, zap.NewNop())

	w := do(r, http.MethodGet, "/api/charters/not-a-uuid/ws", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
