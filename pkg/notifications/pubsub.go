package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Delivery channel topics.
const (
	TopicUser  = "user:notification"
	TopicAdmin = "admin:notification"
)

// Event is one rendered notification flowing through the bus.
type Event struct {
	Topic      string            `json:"topic"`
	UserID     *uuid.UUID        `json:"userId,omitempty"`
	OrderID    *uuid.UUID        `json:"orderId,omitempty"`
	Type       string            `json:"type"` // template key
	Title      string            `json:"title"`
	Content    string            `json:"content"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// Handler consumes events for one downstream channel (dashboard, webhook).
type Handler func(ctx context.Context, event Event)

// Bus is the in-process publish/subscribe fan-out behind the notifier.
// Publish never blocks the caller: each subscriber runs on its own goroutine
// and a panicking subscriber is contained and logged.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	wg          sync.WaitGroup
	logger      *zap.Logger
}

func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]Handler),
		logger:      logger,
	}
}

func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := b.subscribers[event.Topic]
	b.mu.RUnlock()

	for _, handler := range handlers {
		h := handler
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("notification subscriber panicked",
						zap.String("topic", event.Topic),
						zap.Any("panic", r))
				}
			}()
			h(ctx, event)
		}()
	}
}

// Drain blocks until in-flight deliveries finish. Used during shutdown and in
// tests; new publishes during a drain are not waited for.
func (b *Bus) Drain() {
	b.wg.Wait()
}
