package xdlock

import (
	"context"
	"time"
)

// Adapter is the storage-backend contract a Provider drives. Every backend
// (memory, Redis, SQL, Mongo, etcd) implements the same owner-aware,
// idempotent acquire semantics described by Provider.Acquire, so a Handle
// behaves identically regardless of which Adapter produced it.
type Adapter interface {
	// BackendKind identifies the backend for serialized handle scoping,
	// e.g. "memory", "redis", "sql", "mongo".
	BackendKind() string

	// TryAcquire attempts to take the lock identified by key for owner,
	// valid for ttl. If the lock is already held by the same owner, the
	// call succeeds idempotently and refreshes the TTL. If held by a
	// different, non-expired owner, it returns (false, nil).
	TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

	// Release drops the lock if and only if it is currently held by
	// owner. Returns ErrNotLocked if the lock is held by someone else or
	// not held at all.
	Release(ctx context.Context, key, owner string) error

	// Refresh extends the TTL of a lock currently held by owner. Returns
	// ErrNotLocked if ownership was lost.
	Refresh(ctx context.Context, key, owner string, ttl time.Duration) error

	// ForceRelease removes the lock on key unconditionally, regardless of
	// owner. This is the administrative escape hatch for unexpiring locks
	// whose owner is gone; it never fails on a missing key.
	ForceRelease(ctx context.Context, key string) error

	// Inspect reports the current owner and remaining TTL of key, without
	// mutating state. ok is false if the key is unlocked.
	Inspect(ctx context.Context, key string) (owner string, ttl time.Duration, ok bool, err error)

	// Close releases resources held by the adapter (connections, background
	// goroutines). Adapters wrapping a caller-owned client may no-op.
	Close(ctx context.Context) error
}

// DatabaseAdapter is the minimal CRUD surface a relational/document store
// must expose to be wrapped by NewDatabaseAdapterBridge. It purposefully
// mirrors a bare key/value table so the same bridge works over SQL, Mongo,
// or any other store that can run an atomic compare-and-set inside a
// serializable transaction.
type DatabaseAdapter interface {
	// Get returns the current owner and expiry (unix millis) for key.
	// ok is false when no row exists.
	Get(ctx context.Context, key string) (owner string, expiresAtMs int64, ok bool, err error)

	// Upsert writes owner/expiresAtMs for key, replacing any existing row.
	// Implementations run this inside the same transaction as the
	// preceding Get to provide atomicity; the bridge never calls Upsert
	// without first checking the invariant itself.
	Upsert(ctx context.Context, key, owner string, expiresAtMs int64) error

	// Delete removes the row for key unconditionally.
	Delete(ctx context.Context, key string) error
}
