package xdlock

import (
	"context"
	"errors"
	"time"
)

// StateKind classifies what Handle.State observed on the backend.
type StateKind int

const (
	// StateExpired: the key is absent or its TTL elapsed.
	StateExpired StateKind = iota
	// StateAcquiredBySelf: the key is live and held by this handle's owner.
	StateAcquiredBySelf
	// StateHeldByOther: the key is live but held by a different owner.
	StateHeldByOther
)

func (k StateKind) String() string {
	switch k {
	case StateExpired:
		return "expired"
	case StateAcquiredBySelf:
		return "acquired"
	case StateHeldByOther:
		return "unavailable"
	default:
		return "unknown"
	}
}

// LockState is the result of a Handle.State probe.
type LockState struct {
	Kind      StateKind
	Owner     string
	Remaining time.Duration
}

// Handle represents one successful Acquire. It is bound to the owner that
// acquired it; only that owner's calls to Release/Refresh are effective.
// Handle implements xserde.Handle so it can be serialized across process
// boundaries by a provider's registered Transformer.
type Handle struct {
	provider  *Provider
	key       string
	prefixed  string
	owner     string
	ttl       time.Duration
	expiresAt time.Time
}

// Key returns the user-supplied (unprefixed) key.
func (h *Handle) Key() string { return h.key }

// Owner returns the owner identity this handle was acquired under.
func (h *Handle) Owner() string { return h.owner }

// IsExpired reports whether the handle's TTL has elapsed according to the
// local clock. This is advisory only — it does not re-check the backend —
// the source of truth is always Release/Refresh's ErrNotLocked.
func (h *Handle) IsExpired() bool { return !time.Now().Before(h.expiresAt) }

// State re-reads the backend and classifies the key as expired, held by
// this handle's owner, or held by someone else, with the remaining TTL.
func (h *Handle) State(ctx context.Context) (LockState, error) {
	owner, remaining, held, err := h.provider.adapter.Inspect(ctx, h.prefixed)
	if err != nil {
		return LockState{}, err
	}
	if !held {
		return LockState{Kind: StateExpired}, nil
	}
	if owner == h.owner {
		return LockState{Kind: StateAcquiredBySelf, Owner: owner, Remaining: remaining}, nil
	}
	return LockState{Kind: StateHeldByOther, Owner: owner, Remaining: remaining}, nil
}

// Release gives up the lock. Calling Release on an already-expired or
// already-released Handle returns ErrNotLocked.
func (h *Handle) Release(ctx context.Context) error {
	if err := h.provider.adapter.Release(ctx, h.prefixed, h.owner); err != nil {
		if errors.Is(err, ErrNotLocked) {
			h.provider.dispatch(EventUnownedRelease, h.key, h.owner)
		} else {
			h.provider.dispatch(EventUnexpectedError, h.key, h.owner)
		}
		return err
	}
	h.provider.dispatch(EventKeyReleased, h.key, h.owner)
	return nil
}

// ForceRelease removes the lock on this handle's key regardless of who
// currently holds it.
func (h *Handle) ForceRelease(ctx context.Context) error {
	return h.provider.ForceRelease(ctx, h.key)
}

// Refresh extends the lock's TTL using the handle's original expiry
// duration. Returns ErrNotLocked if ownership was lost in the meantime.
func (h *Handle) Refresh(ctx context.Context) error {
	if err := h.provider.adapter.Refresh(ctx, h.prefixed, h.owner, h.ttl); err != nil {
		if errors.Is(err, ErrNotLocked) {
			h.provider.dispatch(EventUnownedRefresh, h.key, h.owner)
		} else {
			h.provider.dispatch(EventUnexpectedError, h.key, h.owner)
		}
		return err
	}
	h.expiresAt = time.Now().Add(h.ttl)
	h.provider.dispatch(EventKeyRefreshed, h.key, h.owner)
	return nil
}

// BackendKind, Namespace, OwnerOrSlotID, Limit, TTL implement xserde.Handle.
func (h *Handle) BackendKind() string { return h.provider.adapter.BackendKind() }
func (h *Handle) Namespace() string   { return h.provider.namespace.Root() }
func (h *Handle) OwnerOrSlotID() string { return h.owner }
func (h *Handle) Limit() (int, bool)  { return 0, false }
func (h *Handle) TTL() (int64, bool)  { return h.ttl.Milliseconds(), true }
