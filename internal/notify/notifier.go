// Package notify рассылает изменения доступности подписчикам:
// календарям по WebSocket, журналу, очереди уведомлений и другим инстансам.
//
// У каждого подписчика своя очередь и одна горутина доставки, поэтому
// изменения одного ключа (чартер, дата, слот) приходят в порядке публикации.
// Ошибка обработчика приводит к повтору: доставка «хотя бы один раз».
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/charter-booking/internal/model"
)

// Change: изменение состояния календаря. Не является источником истины:
// подписчик перечитывает актуальное состояние.
type Change struct {
	Seq        uint64           `json:"seq"`
	Type       model.ChangeType `json:"type"`
	CharterID  uuid.UUID        `json:"charter_id"`
	Date       string           `json:"date"`
	Slot       model.TimeSlot   `json:"slot,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
	// Непустой Origin: изменение пришло с другого инстанса.
	Origin string `json:"origin,omitempty"`
}

// Key: ключ упорядочивания.
func (c Change) Key() string {
	return c.CharterID.String() + "/" + c.Date + "/" + string(c.Slot)
}

type Handler func(ctx context.Context, c Change) error

type Filter func(c Change) bool

// ForCharter пропускает изменения одного чартера.
func ForCharter(charterID uuid.UUID) Filter {
	return func(c Change) bool { return c.CharterID == charterID }
}

// LocalOnly пропускает изменения, сделанные этим инстансом.
func LocalOnly(c Change) bool {
	return c.Origin == ""
}

// Publisher: то, что нужно движку бронирования от нотификатора.
type Publisher interface {
	Publish(ctx context.Context, c Change)
}

type Option func(*Notifier)

func WithMaxAttempts(n int) Option {
	return func(nt *Notifier) {
		if n > 0 {
			nt.maxAttempts = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(nt *Notifier) {
		if d >= 0 {
			nt.retryDelay = d
		}
	}
}

func WithDeliveryTimeout(d time.Duration) Option {
	return func(nt *Notifier) {
		if d > 0 {
			nt.deliveryTimeout = d
		}
	}
}

type Notifier struct {
	mu     sync.Mutex
	seq    uint64
	nextID uint64
	subs   map[uint64]*subscription
	closed bool
	wg     sync.WaitGroup

	maxAttempts     int
	retryDelay      time.Duration
	deliveryTimeout time.Duration
	logger          *zap.Logger
}

func New(logger *zap.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		subs:            make(map[uint64]*subscription),
		maxAttempts:     5,
		retryDelay:      200 * time.Millisecond,
		deliveryTimeout: 10 * time.Second,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Publish ставит изменение в очередь каждому подходящему подписчику и не ждёт доставки.
func (n *Notifier) Publish(_ context.Context, c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		n.logger.Warn("publish after close", zap.String("key", c.Key()), zap.String("type", string(c.Type)))
		return
	}

	n.seq++
	c.Seq = n.seq
	if c.OccurredAt.IsZero() {
		c.OccurredAt = time.Now().UTC()
	}

	for _, s := range n.subs {
		if s.filter == nil || s.filter(c) {
			s.push(c)
		}
	}
}

// Subscribe регистрирует обработчик. filter == nil: все изменения.
// Возвращённая функция отписывает и отбрасывает недоставленное.
func (n *Notifier) Subscribe(name string, filter Filter, h Handler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	s := &subscription{
		id:      n.nextID,
		name:    name,
		filter:  filter,
		handler: h,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	if n.closed {
		close(s.stop)
		return func() {}
	}

	n.subs[s.id] = s
	n.wg.Add(1)
	go n.run(s)

	return func() {
		n.mu.Lock()
		delete(n.subs, s.id)
		n.mu.Unlock()
		s.halt()
	}
}

// Close дожидается доставки всего, что уже в очередях, или отмены ctx.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	n.closed = true
	subs := make([]*subscription, 0, len(n.subs))
	for _, s := range n.subs {
		subs = append(subs, s)
	}
	n.mu.Unlock()

	for _, s := range subs {
		s.finish()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, s := range subs {
			s.halt()
		}
		return ctx.Err()
	}
}

func (n *Notifier) run(s *subscription) {
	defer n.wg.Done()

	for {
		c, ok := s.next()
		if !ok {
			return
		}
		n.deliver(s, c)
	}
}

func (n *Notifier) deliver(s *subscription, c Change) {
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), n.deliveryTimeout)
		err := s.handler(ctx, c)
		cancel()
		if err == nil {
			return
		}

		if attempt >= n.maxAttempts {
			n.logger.Warn("change dropped after retries",
				zap.String("subscriber", s.name),
				zap.String("key", c.Key()),
				zap.String("type", string(c.Type)),
				zap.Uint64("seq", c.Seq),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return
		}

		select {
		case <-time.After(n.retryDelay * time.Duration(attempt)):
		case <-s.stop:
			return
		}
	}
}

type subscription struct {
	id      uint64
	name    string
	filter  Filter
	handler Handler

	mu       sync.Mutex
	queue    []Change
	draining bool
	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func (s *subscription) push(c Change) {
	s.mu.Lock()
	s.queue = append(s.queue, c)
	s.mu.Unlock()
	s.signal()
}

// next блокируется до следующего изменения; false: пора завершаться.
func (s *subscription) next() (Change, bool) {
	for {
		select {
		case <-s.stop:
			return Change{}, false
		default:
		}

		s.mu.Lock()
		if len(s.queue) > 0 {
			c := s.queue[0]
			s.queue[0] = Change{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return c, true
		}
		draining := s.draining
		s.mu.Unlock()

		if draining {
			return Change{}, false
		}

		select {
		case <-s.wake:
		case <-s.stop:
			return Change{}, false
		}
	}
}

func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) finish() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscription) halt() {
	s.stopOnce.Do(func() { close(s.stop) })
}
