package xevents

import "context"

// Listener handles one dispatched event. A non-nil return is routed to the
// bus's UncaughtRejectionHandler rather than propagated to the dispatcher —
// one listener's failure never blocks or cancels another listener.
type Listener func(ctx context.Context, event string, payload any) error

// EventMapSchema validates a payload by event name. A missing entry for an
// event name means "no validation" for that name, not rejection.
type EventMapSchema map[string]func(payload any) error

// UncaughtRejectionHandler receives payloads that failed re-validation on
// delivery, or listener errors, neither of which are allowed to surface
// back through Dispatch.
type UncaughtRejectionHandler func(ctx context.Context, event string, payload any, err error)

// Subscription is the handle returned by AddListener/ListenOnce. Unsubscribe
// is idempotent.
type Subscription struct {
	unsubscribe func()
}

// Unsubscribe detaches the listener this subscription was created for.
// Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Unsubscribe is the closure form returned by Subscribe/SubscribeOnce.
type Unsubscribe func()

// Bus is the event-bus contract every adapter (memory, redis) satisfies.
// Publish gives it the same shape xdlock.EventPublisher/xbreaker.EventPublisher
// expect, so a Bus can be passed directly as either package's event sink.
type Bus interface {
	// AddListener registers l for event, returning a handle that detaches it.
	AddListener(event string, l Listener) (*Subscription, error)

	// RemoveListener detaches a subscription returned by AddListener/ListenOnce.
	RemoveListener(sub *Subscription)

	// ListenOnce registers l for event; it fires at most once, then
	// auto-detaches.
	ListenOnce(event string, l Listener) (*Subscription, error)

	// Subscribe is AddListener's closure-returning sugar.
	Subscribe(event string, l Listener) (Unsubscribe, error)

	// SubscribeOnce is ListenOnce's closure-returning sugar.
	SubscribeOnce(event string, l Listener) (Unsubscribe, error)

	// AsPromise blocks until event fires once (or ctx is done) and returns
	// its payload.
	AsPromise(ctx context.Context, event string) (any, error)

	// Dispatch validates payload against the schema entry for event (if
	// any), then delivers it to every current listener of event. It
	// returns a *ValidationError only for the dispatch-time check; a
	// listener's own failure (including its delivery-time re-validation)
	// never returns from Dispatch, it goes to the rejection sink.
	Dispatch(ctx context.Context, event string, payload any) error

	// Publish satisfies xdlock.EventPublisher / xbreaker.EventPublisher:
	// it dispatches and swallows the error (logging it instead), since
	// those callers do not expect dispatch to fail their mutating call.
	Publish(ctx context.Context, event string, payload any)
}
