package xsemaphore

import (
	"context"
	"errors"
	"time"
)

// Handle represents one held slot. It is bound to the slotID that acquired
// it; only that identity's Release/Refresh are effective. Handle implements
// xserde.Handle so it can be serialized across process boundaries by a
// provider's registered Transformer.
type Handle struct {
	provider *Provider
	key      string
	prefixed string
	slotID   string
	limit    int
	ttl      time.Duration // 0 = unexpiring
}

// Key returns the user-supplied (unprefixed) key.
func (h *Handle) Key() string { return h.key }

// SlotID returns the slot identity this handle was acquired under.
func (h *Handle) SlotID() string { return h.slotID }

// Release frees this handle's slot. Releasing an expired or already-freed
// slot returns ErrSlotNotHeld.
func (h *Handle) Release(ctx context.Context) error {
	if err := h.provider.adapter.Release(ctx, h.prefixed, h.slotID); err != nil {
		if errors.Is(err, ErrSlotNotHeld) {
			h.provider.dispatch(EventUnownedRelease, h.key, h.slotID)
		} else {
			h.provider.dispatch(EventUnexpectedError, h.key, h.slotID)
		}
		return err
	}
	h.provider.dispatch(EventKeyReleased, h.key, h.slotID)
	return nil
}

// Refresh extends the slot's TTL using the handle's original duration.
// Fails with ErrSlotNotHeld for an expired, freed, or unexpiring slot.
func (h *Handle) Refresh(ctx context.Context) error {
	if err := h.provider.adapter.Refresh(ctx, h.prefixed, h.slotID, h.ttl); err != nil {
		if errors.Is(err, ErrSlotNotHeld) {
			h.provider.dispatch(EventUnownedRefresh, h.key, h.slotID)
		} else {
			h.provider.dispatch(EventUnexpectedError, h.key, h.slotID)
		}
		return err
	}
	h.provider.dispatch(EventKeyRefreshed, h.key, h.slotID)
	return nil
}

// ForceReleaseAll clears every slot of this handle's key, not just its own.
func (h *Handle) ForceReleaseAll(ctx context.Context) error {
	return h.provider.ForceReleaseAll(ctx, h.key)
}

// State re-reads the backend: stored limit plus all live slots of the key.
func (h *Handle) State(ctx context.Context) (State, error) {
	return h.provider.adapter.Inspect(ctx, h.prefixed)
}

// BackendKind, Namespace, OwnerOrSlotID, Limit, TTL implement xserde.Handle.
func (h *Handle) BackendKind() string   { return h.provider.adapter.BackendKind() }
func (h *Handle) Namespace() string     { return h.provider.namespace.Root() }
func (h *Handle) OwnerOrSlotID() string { return h.slotID }
func (h *Handle) Limit() (int, bool)    { return h.limit, true }
func (h *Handle) TTL() (int64, bool) {
	if h.ttl <= 0 {
		return 0, false
	}
	return h.ttl.Milliseconds(), true
}
