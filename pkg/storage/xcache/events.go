package xcache

import (
	"context"
	"time"
)

// Event names dispatched by an evented Cache, one per successful mutation.
const (
	EventAdded       = "ADDED"
	EventUpdated     = "UPDATED"
	EventPut         = "PUT"
	EventRemoved     = "REMOVED"
	EventIncremented = "INCREMENTED"
	EventCleared     = "CLEARED"
)

// EventPublisher is the delivery surface for cache mutation events; the
// same shape xdlock/xbreaker use, so one xevents.Bus serves every
// primitive.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any)
}

// EventPayload accompanies every cache event. Key is empty for Clear, which
// carries the group prefix instead.
type EventPayload struct {
	Key    string
	Prefix string
}

// eventedCache decorates any Cache with mutation-event dispatch. Events
// fire only after the underlying operation succeeds; reads are silent.
type eventedCache struct {
	inner Cache
	bus   EventPublisher
}

// NewEventedCache wraps c so every successful mutation publishes the
// corresponding ADDED/UPDATED/PUT/REMOVED/INCREMENTED/CLEARED event to bus.
// A nil bus returns c unchanged.
func NewEventedCache(c Cache, bus EventPublisher) Cache {
	if bus == nil {
		return c
	}
	return &eventedCache{inner: c, bus: bus}
}

func (c *eventedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return c.inner.Get(ctx, key)
}

func (c *eventedCache) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	added, err := c.inner.Add(ctx, key, value, ttl)
	if err == nil && added {
		c.bus.Publish(ctx, EventAdded, EventPayload{Key: key})
	}
	return added, err
}

func (c *eventedCache) Update(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	updated, err := c.inner.Update(ctx, key, value, ttl)
	if err == nil && updated {
		c.bus.Publish(ctx, EventUpdated, EventPayload{Key: key})
	}
	return updated, err
}

func (c *eventedCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.inner.Put(ctx, key, value, ttl); err != nil {
		return err
	}
	c.bus.Publish(ctx, EventPut, EventPayload{Key: key})
	return nil
}

func (c *eventedCache) Remove(ctx context.Context, key string) error {
	if err := c.inner.Remove(ctx, key); err != nil {
		return err
	}
	c.bus.Publish(ctx, EventRemoved, EventPayload{Key: key})
	return nil
}

func (c *eventedCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := c.inner.Increment(ctx, key, delta)
	if err != nil {
		return n, err
	}
	c.bus.Publish(ctx, EventIncremented, EventPayload{Key: key})
	return n, nil
}

func (c *eventedCache) Clear(ctx context.Context, groupPrefix string) error {
	if err := c.inner.Clear(ctx, groupPrefix); err != nil {
		return err
	}
	c.bus.Publish(ctx, EventCleared, EventPayload{Prefix: groupPrefix})
	return nil
}

func (c *eventedCache) WithGroup(group string) Cache {
	return &eventedCache{inner: c.inner.WithGroup(group), bus: c.bus}
}

var _ Cache = (*eventedCache)(nil)
