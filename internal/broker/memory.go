package broker

import (
	"context"
	"sync"

	"checkout/internal/logger"
	"checkout/pkg/errors"
	"checkout/pkg/logging"
	"checkout/pkg/models"
)

// Published is one event accepted by the memory bus.
type Published struct {
	Topic string
	Event models.Event
}

type delivery struct {
	topic string
	event models.Event
}

// MemoryBus is an in-process Producer and Consumer. Events are delivered in
// publish order by a single dispatcher, so a whole saga runs deterministically
// in one process. Every published event is recorded.
type MemoryBus struct {
	logger      logger.Logger
	serviceName string

	mu        sync.Mutex
	handlers  map[string][]HandlerFunc
	queue     []delivery
	published []Published
	closed    bool
	failFn    func(topic string) error

	dispatchMu sync.Mutex
	notify     chan struct{}
}

func NewMemoryBus(log logger.Logger) *MemoryBus {
	return &MemoryBus{
		logger:      log,
		serviceName: "memory",
		handlers:    make(map[string][]HandlerFunc),
		notify:      make(chan struct{}, 1),
	}
}

func (b *MemoryBus) SetServiceName(name string) {
	b.serviceName = name
}

// FailPublish installs a hook that can reject publishes, for exercising
// transport failures. A nil fn clears it.
func (b *MemoryBus) FailPublish(fn func(topic string) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failFn = fn
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, event models.Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.ErrTransport.WithDetail("message", "memory bus is closed")
	}
	if b.failFn != nil {
		if err := b.failFn(topic); err != nil {
			b.mu.Unlock()
			return errors.ErrTransport.WithCause(err)
		}
	}
	snapshot := event.Clone()
	b.queue = append(b.queue, delivery{topic: topic, event: snapshot})
	b.published = append(b.published, Published{Topic: topic, Event: snapshot.Clone()})
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return nil
}

func (b *MemoryBus) Subscribe(topic string, handler HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Drain delivers queued events, including any published while draining,
// until the queue is empty or ctx is done.
func (b *MemoryBus) Drain(ctx context.Context) error {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return nil
		}
		d := b.queue[0]
		b.queue = b.queue[1:]
		handlers := append([]HandlerFunc(nil), b.handlers[d.topic]...)
		b.mu.Unlock()

		if len(handlers) == 0 {
			b.logger.Debugw("No subscriber for topic, dropping event",
				"topic", d.topic,
				"transaction_id", d.event.TransactionID,
			)
			continue
		}

		for _, h := range handlers {
			b.deliver(ctx, h, d)
		}
	}
}

func (b *MemoryBus) deliver(ctx context.Context, h HandlerFunc, d delivery) {
	msgCtx := logging.WithSaga(ctx, d.event.OrderID, d.event.TransactionID)
	msgCtx = logging.WithServiceName(msgCtx, b.serviceName)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
			}
		}()
		return h(msgCtx, d.event.Clone())
	}()
	if err != nil {
		b.logger.ErrorwCtx(msgCtx, "Handler failed, dropping event",
			"error", err,
			"topic", d.topic,
		)
	}
}

// Run dispatches events as they are published until ctx is cancelled.
func (b *MemoryBus) Run(ctx context.Context) error {
	for {
		if err := b.Drain(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.notify:
		}
	}
}

// Published returns a copy of every event accepted so far, in publish order.
func (b *MemoryBus) Published() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Published, len(b.published))
	for i, p := range b.published {
		out[i] = Published{Topic: p.Topic, Event: p.Event.Clone()}
	}
	return out
}

// Topics returns the topic of every published event, in publish order.
func (b *MemoryBus) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	topics := make([]string, len(b.published))
	for i, p := range b.published {
		topics[i] = p.Topic
	}
	return topics
}

func (b *MemoryBus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
