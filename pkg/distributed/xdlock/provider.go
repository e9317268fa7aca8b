package xdlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coordkit/coordkit/pkg/resilience/xretry"
	"github.com/coordkit/coordkit/pkg/xnamespace"
)

// Event names dispatched to a Provider's EventPublisher, if configured.
// One per observable lock lifecycle outcome, positive and negative alike.
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

// EventPayload is the payload attached to every lock event.
type EventPayload struct {
	Key   string
	Owner string
}

// EventPublisher is the minimal surface Provider needs to announce lock
// lifecycle transitions. pkg/events/xevents.Bus implements this; tests can
// supply a stub.
type EventPublisher interface {
	Publish(ctx context.Context, event string, payload any)
}

// Provider mediates between user-facing keys and a storage Adapter: it
// resolves the namespace-prefixed key, drives the idempotent acquire
// algorithm, and wraps the result in a Handle.
type Provider struct {
	adapter   Adapter
	namespace xnamespace.Namespace
	prefixer  xnamespace.KeyPrefixer
	defaultTTL time.Duration
	retryer   *xretry.Retryer
	bus       EventPublisher
}

// Option configures a Provider.
type Option func(*Provider)

// WithDefaultTTL sets the TTL used when Acquire/TryAcquire's ttl argument is
// zero. Defaults to 30s.
func WithDefaultTTL(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.defaultTTL = d
		}
	}
}

// WithBlockingRetryer sets the retry/backoff policy Acquire uses while
// waiting for a contended lock to free up. Defaults to unlimited retries
// with ExponentialBackoff, bounded only by the caller's context.
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
		adapter:    adapter,
		namespace:  ns,
		prefixer:   xnamespace.NewKeyPrefixer(ns),
		defaultTTL: 30 * time.Second,
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

// TryAcquire attempts the lock once and returns immediately. A nil Handle
// with a nil error means the lock is held by someone else; this is not an
// error condition.
func (p *Provider) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (*Handle, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if owner == "" {
		return nil, fmt.Errorf("xdlock: owner must not be empty")
	}
	if ttl <= 0 {
		ttl = p.defaultTTL
	}

	prefixed, err := p.prefixer.PrefixedKey(key)
	if err != nil {
		return nil, err
	}

	ok, err := p.adapter.TryAcquire(ctx, prefixed, owner, ttl)
	if err != nil {
		p.dispatch(EventUnexpectedError, key, owner)
		return nil, fmt.Errorf("xdlock: acquire %q: %w", key, err)
	}
	if !ok {
		p.dispatch(EventKeyAlreadyAcquired, key, owner)
		return nil, nil
	}

	h := &Handle{
		provider:  p,
		key:       key,
		prefixed:  prefixed,
		owner:     owner,
		ttl:       ttl,
		expiresAt: time.Now().Add(ttl),
	}
	p.dispatch(EventKeyAcquired, key, owner)
	return h, nil
}

// AcquireOrFail is the throwing variant of TryAcquire: it returns
// ErrLockHeld when the key is held by a different owner, instead of the
// (nil, nil) "not an error" convention.
func (p *Provider) AcquireOrFail(ctx context.Context, key, owner string, ttl time.Duration) (*Handle, error) {
	h, err := p.TryAcquire(ctx, key, owner, ttl)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: %q", ErrLockHeld, key)
	}
	return h, nil
}

// Acquire blocks, retrying per the Provider's retry policy, until the lock
// is obtained or ctx is done. Returns ErrLockFailed once retries are
// exhausted (only reachable with a bounded RetryPolicy).
func (p *Provider) Acquire(ctx context.Context, key, owner string, ttl time.Duration) (*Handle, error) {
	result, err := xretry.DoWithResult(ctx, p.retryer, func(ctx context.Context) (*Handle, error) {
		h, err := p.TryAcquire(ctx, key, owner, ttl)
		if err != nil {
			return nil, err
		}
		if h == nil {
			return nil, ErrLockHeld
		}
		return h, nil
	})
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return nil, ErrLockFailed
		}
		return nil, err
	}
	return result, nil
}

// Run acquires key for owner, executes fn while holding the lock, and
// releases on every path. Returns (false, nil) without invoking fn when the
// key is held by someone else.
func (p *Provider) Run(ctx context.Context, key, owner string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	h, err := p.TryAcquire(ctx, key, owner, ttl)
	if err != nil {
		return false, err
	}
	if h == nil {
		return false, nil
	}
	return true, p.runHeld(ctx, h, fn)
}

// RunOrFail is Run's throwing variant: ErrLockHeld when the key is
// unavailable instead of a boolean result.
func (p *Provider) RunOrFail(ctx context.Context, key, owner string, ttl time.Duration, fn func(ctx context.Context) error) error {
	h, err := p.AcquireOrFail(ctx, key, owner, ttl)
	if err != nil {
		return err
	}
	return p.runHeld(ctx, h, fn)
}

// RunBlocking waits for the lock per the Provider's retry policy before
// executing fn, releasing on every path.
func (p *Provider) RunBlocking(ctx context.Context, key, owner string, ttl time.Duration, fn func(ctx context.Context) error) error {
	h, err := p.Acquire(ctx, key, owner, ttl)
	if err != nil {
		return err
	}
	return p.runHeld(ctx, h, fn)
}

// runHeld executes fn and releases h afterwards. A release failure after a
// successful fn is surfaced; after a failed fn the release is best-effort
// (expiration reclaims the key regardless).
func (p *Provider) runHeld(ctx context.Context, h *Handle, fn func(ctx context.Context) error) error {
	fnErr := fn(ctx)
	relErr := h.Release(context.WithoutCancel(ctx))
	if fnErr != nil {
		return fnErr
	}
	if relErr != nil && !errors.Is(relErr, ErrNotLocked) {
		return relErr
	}
	return nil
}

// ForceRelease unconditionally removes the lock on key, regardless of
// current owner. The administrative escape hatch for abandoned unexpiring
// locks.
func (p *Provider) ForceRelease(ctx context.Context, key string) error {
	prefixed, err := p.prefixer.PrefixedKey(key)
	if err != nil {
		return err
	}
	if err := p.adapter.ForceRelease(ctx, prefixed); err != nil {
		p.dispatch(EventUnexpectedError, key, "")
		return err
	}
	p.dispatch(EventKeyForceReleased, key, "")
	return nil
}

// Inspect reports the current holder of key without acquiring it.
func (p *Provider) Inspect(ctx context.Context, key string) (owner string, ttl time.Duration, held bool, err error) {
	prefixed, err := p.prefixer.PrefixedKey(key)
	if err != nil {
		return "", 0, false, err
	}
	return p.adapter.Inspect(ctx, prefixed)
}

// Close releases the underlying adapter's resources.
func (p *Provider) Close(ctx context.Context) error {
	return p.adapter.Close(ctx)
}

func (p *Provider) dispatch(event, key, owner string) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(context.Background(), event, EventPayload{Key: key, Owner: owner})
}
