package xevents

import (
	"context"
	"sync"
	"sync/atomic"
)

// memoryBus is the in-process adapter: listeners are kept in a
// mutex-guarded map[string][]*subscription rather than a channel-fanout
// pipeline. Per-listener ordering comes from each subscription draining
// its own pending queue one item at a time; different listeners drain
// concurrently and independently, so there is no cross-listener ordering.
type memoryBus struct {
	opts busOptions

	mu        sync.RWMutex
	listeners map[string][]*subscription
	closed    atomic.Bool
}

// NewMemoryBus constructs an in-process Bus.
func NewMemoryBus(opts ...Option) Bus {
	o := defaultBusOptions()
	for _, apply := range opts {
		apply(&o)
	}
	return &memoryBus{opts: o, listeners: make(map[string][]*subscription)}
}

type pendingEvent struct {
	ctx     context.Context
	payload any
}

// subscription is one listener's delivery queue. enqueue/drain never touch
// a channel: the pending slice plus running flag, both guarded by mu, give
// exactly one active drain goroutine per listener at a time.
type subscription struct {
	mu      sync.Mutex
	pending []pendingEvent
	running bool
	closed  bool

	event string
	fn    Listener
	once  bool
	bus   *memoryBus
}

func (b *memoryBus) AddListener(event string, l Listener) (*Subscription, error) {
	return b.add(event, l, false)
}

func (b *memoryBus) ListenOnce(event string, l Listener) (*Subscription, error) {
	return b.add(event, l, true)
}

func (b *memoryBus) Subscribe(event string, l Listener) (Unsubscribe, error) {
	sub, err := b.AddListener(event, l)
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

func (b *memoryBus) SubscribeOnce(event string, l Listener) (Unsubscribe, error) {
	sub, err := b.ListenOnce(event, l)
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}

func (b *memoryBus) add(event string, l Listener, once bool) (*Subscription, error) {
	if l == nil {
		return nil, ErrNilListener
	}
	if b.closed.Load() {
		return nil, ErrBusClosed
	}
	sub := &subscription{event: event, fn: l, once: once, bus: b}

	b.mu.Lock()
	b.listeners[event] = append(b.listeners[event], sub)
	b.mu.Unlock()

	return &Subscription{unsubscribe: func() { b.removeSub(sub) }}, nil
}

func (b *memoryBus) RemoveListener(sub *Subscription) {
	sub.Unsubscribe()
}

func (b *memoryBus) removeSub(sub *subscription) {
	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.listeners[sub.event]
	for i, s := range list {
		if s == sub {
			b.listeners[sub.event] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(b.listeners[sub.event]) == 0 {
		delete(b.listeners, sub.event)
	}
}

func (b *memoryBus) AsPromise(ctx context.Context, event string) (any, error) {
	result := make(chan any, 1)
	sub, err := b.ListenOnce(event, func(_ context.Context, _ string, payload any) error {
		select {
		case result <- payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	select {
	case payload := <-result:
		return payload, nil
	case <-ctx.Done():
		return nil, ErrPromiseAborted
	}
}

func (b *memoryBus) Dispatch(ctx context.Context, event string, payload any) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if err := validate(b.opts.schema, event, payload); err != nil {
		return err
	}

	b.mu.RLock()
	listeners := append([]*subscription(nil), b.listeners[event]...)
	b.mu.RUnlock()

	for _, sub := range listeners {
		sub.enqueue(ctx, payload)
	}
	return nil
}

func (b *memoryBus) Publish(ctx context.Context, event string, payload any) {
	if err := b.Dispatch(ctx, event, payload); err != nil {
		b.opts.logger.Warn("xevents: publish dispatch rejected", "event", event, "error", err)
	}
}

func (b *memoryBus) Close() {
	b.closed.Store(true)
}

func (s *subscription) enqueue(ctx context.Context, payload any) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, pendingEvent{ctx: ctx, payload: payload})
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.drain()
}

func (s *subscription) drain() {
	for {
		s.mu.Lock()
		if s.closed || len(s.pending) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		item := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.deliver(item)

		if s.once {
			s.bus.removeSub(s)
			return
		}
	}
}

func (s *subscription) deliver(item pendingEvent) {
	if err := validate(s.bus.opts.schema, s.event, item.payload); err != nil {
		s.bus.opts.onReject(item.ctx, s.event, item.payload, err)
		return
	}
	if err := s.fn(item.ctx, s.event, item.payload); err != nil {
		s.bus.opts.onReject(item.ctx, s.event, item.payload, err)
	}
}

func validate(schema EventMapSchema, event string, payload any) error {
	if schema == nil {
		return nil
	}
	check, ok := schema[event]
	if !ok || check == nil {
		return nil
	}
	if err := check(payload); err != nil {
		return &ValidationError{Event: event, Err: err}
	}
	return nil
}

var _ Bus = (*memoryBus)(nil)
