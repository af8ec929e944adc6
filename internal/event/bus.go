package event

import (
	"context"
	"sync"
	"sync/atomic"

	"cellrun/internal/metrics"
)

const defaultSubscriberBufferSize = 64

type BusOptions struct {
	Name                 string
	SubscriberBufferSize int
	MaxSubscribers       int
	Registry             *metrics.Registry
}

// Bus fans events out to subscribers. Sends never block a publisher:
// a subscriber that cannot keep up loses events, counted as drops.
type Bus[T any] struct {
	mu          sync.Mutex
	subscribers map[uint64]subscription[T]
	nextSubID   uint64
	closed      bool
	closeOnce   sync.Once
	options     BusOptions
	registry    *metrics.Registry
}

type subscription[T any] struct {
	id     uint64
	ch     chan T
	filter func(T) bool
}

func NewBus[T any](ctx context.Context, opts BusOptions) *Bus[T] {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.SubscriberBufferSize <= 0 {
		opts.SubscriberBufferSize = defaultSubscriberBufferSize
	}
	bus := &Bus[T]{
		subscribers: make(map[uint64]subscription[T]),
		options:     opts,
		registry:    opts.Registry,
	}
	if bus.registry == nil {
		bus.registry = metrics.Default
	}
	if done := ctx.Done(); done != nil {
		go func() {
			<-done
			bus.Close()
		}()
	}
	return bus
}

func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	return b.SubscribeFiltered(nil)
}

func (b *Bus[T]) SubscribeFiltered(filter func(T) bool) (<-chan T, func()) {
	if b == nil {
		ch := make(chan T)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan T, b.options.SubscriberBufferSize)
	id := atomic.AddUint64(&b.nextSubID, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.options.MaxSubscribers > 0 && len(b.subscribers) >= b.options.MaxSubscribers {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subscribers[id] = subscription[T]{id: id, ch: ch, filter: filter}
	b.mu.Unlock()

	return ch, func() {
		b.removeSubscriber(id)
	}
}

func (b *Bus[T]) Publish(event T) {
	if b == nil {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	subscribers := make([]subscription[T], 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subscribers = append(subscribers, sub)
	}
	b.mu.Unlock()

	if b.registry != nil {
		b.registry.IncEventPublished(b.busName())
	}

	for _, sub := range subscribers {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		b.sendToSubscriber(sub, event)
	}
}

func (b *Bus[T]) Close() {
	if b == nil {
		return
	}
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		subscribers := b.subscribers
		b.subscribers = make(map[uint64]subscription[T])
		b.mu.Unlock()

		for _, sub := range subscribers {
			close(sub.ch)
		}
	})
}

func (b *Bus[T]) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

func (b *Bus[T]) sendToSubscriber(sub subscription[T], event T) {
	delivered := b.safeSend(sub, event)
	if !delivered && b.registry != nil {
		b.registry.IncEventDropped(b.busName())
	}
}

// safeSend tolerates a racing Close of the subscriber channel.
func (b *Bus[T]) safeSend(sub subscription[T], event T) (delivered bool) {
	defer func() {
		if recover() != nil {
			b.removeSubscriber(sub.id)
			delivered = false
		}
	}()
	select {
	case sub.ch <- event:
		return true
	default:
		return false
	}
}

func (b *Bus[T]) removeSubscriber(id uint64) {
	if b == nil {
		return
	}
	var ch chan T
	b.mu.Lock()
	if existing, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		ch = existing.ch
	}
	b.mu.Unlock()

	if ch != nil {
		close(ch)
	}
}

func (b *Bus[T]) busName() string {
	if b.options.Name == "" {
		return "event_bus"
	}
	return b.options.Name
}
