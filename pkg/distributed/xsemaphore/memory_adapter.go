package xsemaphore

import (
	"context"
	"sync"
	"time"

	"github.com/coordkit/coordkit/pkg/util/xkeylock"
)

// memoryRecord is one semaphore key kept in-process: the bound limit plus
// slotID -> expiry (zero time = unexpiring).
type memoryRecord struct {
	limit int
	slots map[string]time.Time
}

// MemoryAdapter is an in-process Adapter guarded by per-key critical
// sections, the same xkeylock striping xdlock.MemoryAdapter uses, so
// contention on unrelated keys never serializes.
type MemoryAdapter struct {
	keylock xkeylock.KeyLock
	mu      sync.Mutex
	records map[string]*memoryRecord
	nowFn   func() time.Time
}

// NewMemoryAdapter returns a ready-to-use MemoryAdapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		keylock: xkeylock.New(),
		records: make(map[string]*memoryRecord),
		nowFn:   time.Now,
	}
}

func (a *MemoryAdapter) BackendKind() string { return "memory" }

func (a *MemoryAdapter) withKey(ctx context.Context, key string, fn func()) error {
	if ctx == nil {
		ctx = context.Background()
	}
	h, err := a.keylock.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer h.Unlock()
	fn()
	return nil
}

func (a *MemoryAdapter) load(key string) *memoryRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records[key]
}

func (a *MemoryAdapter) store(key string, rec *memoryRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rec == nil || len(rec.slots) == 0 {
		delete(a.records, key)
		return
	}
	a.records[key] = rec
}

// purgeExpired drops slots whose expiry has passed. Zero-time slots never
// expire.
func purgeExpired(rec *memoryRecord, now time.Time) {
	for slotID, exp := range rec.slots {
		if !exp.IsZero() && !now.Before(exp) {
			delete(rec.slots, slotID)
		}
	}
}

func (a *MemoryAdapter) Acquire(ctx context.Context, key, slotID string, limit int, ttl time.Duration) (bool, error) {
	var acquired bool
	err := a.withKey(ctx, key, func() {
		now := a.nowFn()
		rec := a.load(key)
		if rec != nil {
			purgeExpired(rec, now)
			if len(rec.slots) == 0 {
				rec = nil
			}
		}
		if rec == nil {
			rec = &memoryRecord{limit: limit, slots: make(map[string]time.Time)}
		}

		_, held := rec.slots[slotID]
		if !held && len(rec.slots) >= rec.limit {
			a.store(key, rec)
			return
		}

		var exp time.Time
		if ttl > 0 {
			exp = now.Add(ttl)
		}
		rec.slots[slotID] = exp
		a.store(key, rec)
		acquired = true
	})
	return acquired, err
}

func (a *MemoryAdapter) Release(ctx context.Context, key, slotID string) error {
	var result error = ErrSlotNotHeld
	err := a.withKey(ctx, key, func() {
		rec := a.load(key)
		if rec == nil {
			return
		}
		purgeExpired(rec, a.nowFn())
		if _, held := rec.slots[slotID]; held {
			delete(rec.slots, slotID)
			result = nil
		}
		a.store(key, rec)
	})
	if err != nil {
		return err
	}
	return result
}

func (a *MemoryAdapter) Refresh(ctx context.Context, key, slotID string, ttl time.Duration) error {
	var result error = ErrSlotNotHeld
	err := a.withKey(ctx, key, func() {
		now := a.nowFn()
		rec := a.load(key)
		if rec == nil {
			return
		}
		purgeExpired(rec, now)
		exp, held := rec.slots[slotID]
		if held && !exp.IsZero() {
			rec.slots[slotID] = now.Add(ttl)
			result = nil
		}
		a.store(key, rec)
	})
	if err != nil {
		return err
	}
	return result
}

func (a *MemoryAdapter) ForceReleaseAll(ctx context.Context, key string) error {
	return a.withKey(ctx, key, func() {
		a.store(key, nil)
	})
}

func (a *MemoryAdapter) Inspect(ctx context.Context, key string) (State, error) {
	var state State
	err := a.withKey(ctx, key, func() {
		rec := a.load(key)
		if rec == nil {
			return
		}
		purgeExpired(rec, a.nowFn())
		a.store(key, rec)
		if len(rec.slots) == 0 {
			return
		}
		state.Limit = rec.limit
		for slotID, exp := range rec.slots {
			state.Slots = append(state.Slots, SlotState{SlotID: slotID, ExpiresAt: exp})
		}
	})
	if err != nil {
		return State{}, err
	}
	return state, nil
}

// Close releases the underlying key-lock registry.
func (a *MemoryAdapter) Close(ctx context.Context) error {
	if err := a.keylock.Close(); err != nil && err != xkeylock.ErrClosed {
		return err
	}
	return nil
}

var _ Adapter = (*MemoryAdapter)(nil)
