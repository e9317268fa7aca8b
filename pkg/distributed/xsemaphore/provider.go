package xsemaphore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coordkit/coordkit/pkg/resilience/xretry"
	"github.com/coordkit/coordkit/pkg/xnamespace"
)

// Event names dispatched to a Provider's EventPublisher, if configured.
// The same lifecycle family xdlock uses, observed per (key, slotID).
const (
	EventKeyAcquired        = "KEY_ACQUIRED"
	EventKeyAlreadyAcquired = "KEY_ALREADY_ACQUIRED"
	EventKeyReleased        = "KEY_RELEASED"
	EventKeyForceReleased   = "KEY_FORCE_RELEASED"
	EventKeyRefreshed       = "KEY_REFRESHED"
	EventUnownedRelease     = "UNOWNED_RELEASE"
	EventUnownedRefresh     = "UNOWNED_REFRESH"
	EventUnexpectedError    = "UNEXPECTED_ERROR"
)

// EventPayload is the payload attached to every semaphore event.
type EventPayload struct {
	Key    string
	SlotID string
}

// EventPublisher is the minimal surface Provider needs to announce slot
// lifecycle transitions; pkg/events/xevents.Bus implements this.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any)
}

// Provider mediates between user-facing keys and a storage Adapter: it
// resolves the namespace-prefixed key, applies default limit/TTL, drives
// the blocking-acquire retry loop, and wraps successful acquires in a
// Handle.
type Provider struct {
	adapter      Adapter
	namespace    xnamespace.Namespace
	prefixer     xnamespace.KeyPrefixer
	defaultTTL   time.Duration
	defaultLimit int
	retryer      *xretry.Retryer
	bus          EventPublisher
}

// Option configures a Provider.
type Option func(*Provider)

// WithDefaultTTL sets the slot TTL used when an acquire passes ttl == 0
// with no explicit unexpiring intent. Defaults to 30s. Callers that want an
// unexpiring slot pass a negative ttl.
func WithDefaultTTL(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.defaultTTL = d
		}
	}
}

// WithDefaultLimit sets the limit used when an acquire passes limit <= 0.
// Defaults to 1 (a semaphore of one slot behaves as a mutex).
func WithDefaultLimit(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.defaultLimit = n
		}
	}
}

// WithBlockingRetryer sets the retry/backoff policy Acquire uses while
// waiting for a slot to free up. Defaults to unlimited retries with
// ExponentialBackoff, bounded only by the caller's context.
func WithBlockingRetryer(r *xretry.Retryer) Option {
	return func(p *Provider) {
		if r != nil {
			p.retryer = r
		}
	}
}

// WithEventPublisher attaches an EventPublisher that receives the
// KEY_ACQUIRED/KEY_RELEASED/... lifecycle notifications.
func WithEventPublisher(bus EventPublisher) Option {
	return func(p *Provider) {
		p.bus = bus
	}
}

// NewProvider builds a Provider over adapter, scoping all keys under ns.
func NewProvider(adapter Adapter, ns xnamespace.Namespace, opts ...Option) (*Provider, error) {
	if adapter == nil {
		return nil, ErrNilClient
	}
	p := &Provider{
		adapter:      adapter,
		namespace:    ns,
		prefixer:     xnamespace.NewKeyPrefixer(ns),
		defaultTTL:   30 * time.Second,
		defaultLimit: 1,
		retryer: xretry.NewRetryer(
			xretry.WithRetryPolicy(xretry.NewAlwaysRetry()),
			xretry.WithBackoffPolicy(xretry.NewExponentialBackoff()),
		),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// resolve applies defaults and namespace prefixing. ttl semantics: 0 picks
// the provider default, negative means unexpiring, positive is used as-is.
func (p *Provider) resolve(key, slotID string, limit int, ttl time.Duration) (prefixed string, boundLimit int, boundTTL time.Duration, err error) {
	if limit <= 0 {
		limit = p.defaultLimit
	}
	if ttl == 0 {
		ttl = p.defaultTTL
	} else if ttl < 0 {
		ttl = 0
	}
	if err := validateAcquire(key, slotID, limit); err != nil {
		return "", 0, 0, err
	}
	prefixed, err = p.prefixer.PrefixedKey(key)
	if err != nil {
		return "", 0, 0, err
	}
	return prefixed, limit, ttl, nil
}

// TryAcquire attempts to reserve one slot and returns immediately. A nil
// Handle with a nil error means every slot is taken; this is not an error
// condition. Acquiring with a slotID that already holds a slot succeeds
// idempotently and refreshes its TTL.
func (p *Provider) TryAcquire(ctx context.Context, key, slotID string, limit int, ttl time.Duration) (*Handle, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	prefixed, limit, ttl, err := p.resolve(key, slotID, limit, ttl)
	if err != nil {
		return nil, err
	}

	ok, err := p.adapter.Acquire(ctx, prefixed, slotID, limit, ttl)
	if err != nil {
		p.dispatch(EventUnexpectedError, key, slotID)
		return nil, fmt.Errorf("xsemaphore: acquire %q: %w", key, err)
	}
	if !ok {
		p.dispatch(EventKeyAlreadyAcquired, key, slotID)
		return nil, nil
	}

	h := &Handle{
		provider: p,
		key:      key,
		prefixed: prefixed,
		slotID:   slotID,
		limit:    limit,
		ttl:      ttl,
	}
	p.dispatch(EventKeyAcquired, key, slotID)
	return h, nil
}

// AcquireOrFail is TryAcquire's throwing variant: ErrSemaphoreFull when no
// slot is free.
func (p *Provider) AcquireOrFail(ctx context.Context, key, slotID string, limit int, ttl time.Duration) (*Handle, error) {
	h, err := p.TryAcquire(ctx, key, slotID, limit, ttl)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %q", ErrSemaphoreFull, key)
	}
	return h, nil
}

// Acquire blocks, retrying per the Provider's retry policy, until a slot is
// obtained or ctx is done. Returns ErrAcquireFailed once retries are
// exhausted (only reachable with a bounded RetryPolicy).
func (p *Provider) Acquire(ctx context.Context, key, slotID string, limit int, ttl time.Duration) (*Handle, error) {
	result, err := xretry.DoWithResult(ctx, p.retryer, func(ctx context.Context) (*Handle, error) {
		h, err := p.TryAcquire(ctx, key, slotID, limit, ttl)
		if err != nil {
			return nil, err
		}
		if h == nil {
			return nil, ErrSemaphoreFull
		}
		return h, nil
	})
	if err != nil {
		if errors.Is(err, ErrSemaphoreFull) {
			return nil, ErrAcquireFailed
		}
		return nil, err
	}
	return result, nil
}

// ForceReleaseAll unconditionally clears every slot of key and the stored
// limit.
func (p *Provider) ForceReleaseAll(ctx context.Context, key string) error {
	prefixed, err := p.prefixer.PrefixedKey(key)
	if err != nil {
		return err
	}
	if err := p.adapter.ForceReleaseAll(ctx, prefixed); err != nil {
		p.dispatch(EventUnexpectedError, key, "")
		return err
	}
	p.dispatch(EventKeyForceReleased, key, "")
	return nil
}

// Inspect reports the stored limit and live slots of key without mutating
// state.
func (p *Provider) Inspect(ctx context.Context, key string) (State, error) {
	prefixed, err := p.prefixer.PrefixedKey(key)
	if err != nil {
		return State{}, err
	}
	return p.adapter.Inspect(ctx, prefixed)
}

// Close releases the underlying adapter's resources.
func (p *Provider) Close(ctx context.Context) error {
	return p.adapter.Close(ctx)
}

func (p *Provider) dispatch(event, key, slotID string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(context.Background(), event, EventPayload{Key: key, SlotID: slotID})
}
