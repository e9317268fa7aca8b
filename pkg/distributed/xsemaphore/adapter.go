package xsemaphore

import (
	"context"
	"time"
)

// SlotState describes one live slot of a semaphore key.
type SlotState struct {
	SlotID    string
	ExpiresAt time.Time // zero = unexpiring
}

// State is a point-in-time view of a semaphore key. Limit is 0 when the
// key has no live record (fully released or expired).
type State struct {
	Limit int
	Slots []SlotState
}

// Live reports the number of live slots.
func (s State) Live() int { return len(s.Slots) }

// Adapter is the storage-backend contract a Provider drives. All
// realizations implement the same algorithm: purge expired slots, honor the
// stored limit over the caller's, treat same-slotID acquire as idempotent,
// and keep the record's aggregate expiry equal to the longest slot
// expiration (or "never" while any live slot is unexpiring).
type Adapter interface {
	// BackendKind identifies the backend for serialized handle scoping,
	// e.g. "memory", "redis", "sql".
	BackendKind() string

	// Acquire reserves one slot of key for slotID. limit binds only on the
	// first acquire of an empty key; afterwards the stored limit wins.
	// ttl <= 0 means the slot never expires. Returns (false, nil) when the
	// live slot count has reached the limit and slotID holds none; acquire
	// by a slotID that already holds a slot succeeds and refreshes its TTL.
	Acquire(ctx context.Context, key, slotID string, limit int, ttl time.Duration) (bool, error)

	// Release frees slotID's slot. Returns ErrSlotNotHeld if the slot is
	// absent or already expired. Releasing the last slot reclaims the
	// whole record, including the stored limit.
	Release(ctx context.Context, key, slotID string) error

	// Refresh extends a live, expiring slot's TTL. Returns ErrSlotNotHeld
	// for a missing or expired slot — and for an unexpiring one: refresh
	// only ever tightens a deadline, never introduces one retroactively.
	Refresh(ctx context.Context, key, slotID string, ttl time.Duration) error

	// ForceReleaseAll removes every slot of key and the stored limit,
	// regardless of holders. Never fails on a missing key.
	ForceReleaseAll(ctx context.Context, key string) error

	// Inspect reports the stored limit and live slots without mutating
	// state.
	Inspect(ctx context.Context, key string) (State, error)

	// Close releases resources held by the adapter.
	Close(ctx context.Context) error
}

func validateAcquire(key, slotID string, limit int) error {
	if key == "" {
		return ErrEmptyKey
	}
	if slotID == "" {
		return ErrEmptySlotID
	}
	if limit <= 0 {
		return ErrInvalidLimit
	}
	return nil
}
