package xevents

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
)

// redisBus shares a process's listener bookkeeping (schema, subscriptions,
// ordering) with memoryBus and adds one thing: Dispatch publishes to Redis
// instead of delivering in-process directly. Delivery — including back to
// this same process — happens uniformly through the pub/sub subscription
// loop, so there is exactly one code path for "payload reaches a listener"
// regardless of which process dispatched it.
type redisBus struct {
	*memoryBus

	client redis.UniversalClient
	prefix string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// NewRedisBus constructs a Bus backed by redis.UniversalClient Pub/Sub.
// Every event name is published to channel "<prefix><event>"; the bus
// subscribes once to "<prefix>*" and demultiplexes incoming messages by
// channel name.
func NewRedisBus(ctx context.Context, client redis.UniversalClient, opts ...Option) (Bus, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	o := defaultBusOptions()
	for _, apply := range opts {
		apply(&o)
	}

	runCtx, cancel := context.WithCancel(ctx)
	rb := &redisBus{
		memoryBus: &memoryBus{opts: o, listeners: make(map[string][]*subscription)},
		client:    client,
		prefix:    o.keyPrefix,
		cancel:    cancel,
	}

	pubsub := client.PSubscribe(runCtx, rb.prefix+"*")
	if _, err := pubsub.Receive(runCtx); err != nil {
		cancel()
		return nil, err
	}

	rb.wg.Add(1)
	go rb.readLoop(runCtx, pubsub)

	return rb, nil
}

func (rb *redisBus) readLoop(ctx context.Context, pubsub *redis.PubSub) {
	defer rb.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			rb.handleMessage(ctx, msg)
		}
	}
}

func (rb *redisBus) handleMessage(ctx context.Context, msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		rb.opts.logger.Warn("xevents: dropping malformed redis event", "channel", msg.Channel, "error", err)
		return
	}

	var payload any
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			rb.opts.logger.Warn("xevents: dropping undecodable event payload", "event", env.Event, "error", err)
			return
		}
	}

	rb.mu.RLock()
	listeners := append([]*subscription(nil), rb.listeners[env.Event]...)
	rb.mu.RUnlock()

	for _, sub := range listeners {
		sub.enqueue(ctx, payload)
	}
}

func (rb *redisBus) Dispatch(ctx context.Context, event string, payload any) error {
	if err := validate(rb.opts.schema, event, payload); err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(envelope{Event: event, Payload: raw})
	if err != nil {
		return err
	}
	return rb.client.Publish(ctx, rb.channelName(event), body).Err()
}

func (rb *redisBus) Publish(ctx context.Context, event string, payload any) {
	if err := rb.Dispatch(ctx, event, payload); err != nil {
		rb.opts.logger.Warn("xevents: publish dispatch rejected", "event", event, "error", err)
	}
}

func (rb *redisBus) channelName(event string) string {
	return rb.prefix + event
}

// Close stops the pub/sub read loop and waits for it to exit.
func (rb *redisBus) Close() {
	rb.memoryBus.Close()
	rb.cancel()
	rb.wg.Wait()
}

var _ Bus = (*redisBus)(nil)
