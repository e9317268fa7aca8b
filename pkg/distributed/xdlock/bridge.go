package xdlock

import (
	"context"
	"fmt"
	"time"
)

// TxRunner executes fn inside a single serializable transaction, retrying
// on serialization failures per the underlying driver's convention. SQL and
// Mongo adapters supply this so DatabaseAdapterBridge never has to know
// which driver is underneath.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// DatabaseAdapterBridge turns any DatabaseAdapter (a plain CRUD surface)
// into a full Adapter by running the read-check-write sequence inside a
// serializable transaction supplied by runTx. This is how SQL and Mongo
// backends reuse the exact same owner-aware idempotent-acquire algorithm as
// the native memory/Redis adapters without each one hand-rolling it.
type DatabaseAdapterBridge struct {
	backendKind string
	db          DatabaseAdapter
	runTx       TxRunner
	nowFn       func() time.Time
}

// NewDatabaseAdapterBridge wraps db using runTx as the transaction boundary.
func NewDatabaseAdapterBridge(backendKind string, db DatabaseAdapter, runTx TxRunner) *DatabaseAdapterBridge {
	return &DatabaseAdapterBridge{
		backendKind: backendKind,
		db:          db,
		runTx:       runTx,
		nowFn:       time.Now,
	}
}

func (b *DatabaseAdapterBridge) BackendKind() string { return b.backendKind }

func (b *DatabaseAdapterBridge) TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	acquired := false
	err := b.runTx(ctx, func(ctx context.Context) error {
		now := b.nowFn()
		existingOwner, expiresAtMs, ok, err := b.db.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("xdlock: %s get: %w", b.backendKind, err)
		}

		if ok && existingOwner != owner && now.UnixMilli() < expiresAtMs {
			// held by someone else, still alive
			acquired = false
			return nil
		}

		// free, expired, or already ours: acquire/refresh idempotently
		if err := b.db.Upsert(ctx, key, owner, now.Add(ttl).UnixMilli()); err != nil {
			return fmt.Errorf("xdlock: %s upsert: %w", b.backendKind, err)
		}
		acquired = true
		return nil
	})
	return acquired, err
}

func (b *DatabaseAdapterBridge) Release(ctx context.Context, key, owner string) error {
	return b.runTx(ctx, func(ctx context.Context) error {
		existingOwner, expiresAtMs, ok, err := b.db.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("xdlock: %s get: %w", b.backendKind, err)
		}
		if !ok || existingOwner != owner || b.nowFn().UnixMilli() >= expiresAtMs {
			return ErrNotLocked
		}
		if err := b.db.Delete(ctx, key); err != nil {
			return fmt.Errorf("xdlock: %s delete: %w", b.backendKind, err)
		}
		return nil
	})
}

func (b *DatabaseAdapterBridge) Refresh(ctx context.Context, key, owner string, ttl time.Duration) error {
	return b.runTx(ctx, func(ctx context.Context) error {
		now := b.nowFn()
		existingOwner, expiresAtMs, ok, err := b.db.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("xdlock: %s get: %w", b.backendKind, err)
		}
		if !ok || existingOwner != owner || now.UnixMilli() >= expiresAtMs {
			return ErrNotLocked
		}
		if err := b.db.Upsert(ctx, key, owner, now.Add(ttl).UnixMilli()); err != nil {
			return fmt.Errorf("xdlock: %s upsert: %w", b.backendKind, err)
		}
		return nil
	})
}

func (b *DatabaseAdapterBridge) ForceRelease(ctx context.Context, key string) error {
	if err := b.db.Delete(ctx, key); err != nil {
		return fmt.Errorf("xdlock: %s force delete: %w", b.backendKind, err)
	}
	return nil
}

func (b *DatabaseAdapterBridge) Inspect(ctx context.Context, key string) (string, time.Duration, bool, error) {
	owner, expiresAtMs, ok, err := b.db.Get(ctx, key)
	if err != nil {
		return "", 0, false, fmt.Errorf("xdlock: %s get: %w", b.backendKind, err)
	}
	if !ok {
		return "", 0, false, nil
	}
	remaining := time.Until(time.UnixMilli(expiresAtMs))
	if remaining <= 0 {
		return "", 0, false, nil
	}
	return owner, remaining, true, nil
}

func (b *DatabaseAdapterBridge) Close(ctx context.Context) error { return nil }

var _ Adapter = (*DatabaseAdapterBridge)(nil)
