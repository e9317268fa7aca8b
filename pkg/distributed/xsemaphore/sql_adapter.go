package xsemaphore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLAdapter implements Adapter over the semaphore / semaphore_slot tables
// (schema in internal/migrations), composing purge-check-write inside one
// serializable transaction per operation — the same transaction discipline
// as xdlock's sqlDatabaseAdapter, spread over two tables because a
// semaphore record is a limit row plus N slot rows.
//
// An optional background sweeper deletes expired slot rows (and orphaned
// limit rows) on an interval, so abandoned semaphores do not rely on the
// next acquire to collect them.
type SQLAdapter struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	nowFn  func() time.Time

	sweepInterval time.Duration
	sweepStop     chan struct{}
	sweepOnce     sync.Once
	sweepWG       sync.WaitGroup
}

// SQLOption configures a SQLAdapter.
type SQLOption func(*SQLAdapter)

// WithSweepInterval sets how often the background sweeper deletes expired
// slot rows. Defaults to 1 minute; <= 0 disables the sweeper.
func WithSweepInterval(d time.Duration) SQLOption {
	return func(a *SQLAdapter) { a.sweepInterval = d }
}

// WithSQLLogger sets the logger for sweeper failures. Defaults to
// slog.Default().
func WithSQLLogger(logger *slog.Logger) SQLOption {
	return func(a *SQLAdapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewSQLAdapter returns an Adapter backed by PostgreSQL and starts the
// expired-slot sweeper (unless disabled). Close stops the sweeper.
func NewSQLAdapter(pool *pgxpool.Pool, opts ...SQLOption) (*SQLAdapter, error) {
	if pool == nil {
		return nil, ErrNilClient
	}
	a := &SQLAdapter{
		pool:          pool,
		logger:        slog.Default(),
		nowFn:         time.Now,
		sweepInterval: time.Minute,
		sweepStop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.sweepInterval > 0 {
		a.sweepWG.Add(1)
		go a.sweepLoop()
	}
	return a, nil
}

func (a *SQLAdapter) BackendKind() string { return "sql" }

func (a *SQLAdapter) runSerializable(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("xsemaphore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("xsemaphore: commit tx: %w", err)
	}
	return nil
}

// purgeExpiredTx deletes key's expired slot rows inside tx. NULL expiration
// never expires.
func (a *SQLAdapter) purgeExpiredTx(ctx context.Context, tx pgx.Tx, key string, nowMs int64) error {
	_, err := tx.Exec(ctx,
		`DELETE FROM semaphore_slot WHERE key = $1 AND expiration IS NOT NULL AND expiration <= $2`,
		key, nowMs)
	return err
}

// dropIfEmptyTx removes the limit row when no slot rows remain, so an
// emptied key's next acquire may re-establish the limit.
func (a *SQLAdapter) dropIfEmptyTx(ctx context.Context, tx pgx.Tx, key string) error {
	_, err := tx.Exec(ctx, `
		DELETE FROM semaphore
		WHERE key = $1
		  AND NOT EXISTS (SELECT 1 FROM semaphore_slot WHERE key = $1)
	`, key)
	return err
}

func (a *SQLAdapter) Acquire(ctx context.Context, key, slotID string, limit int, ttl time.Duration) (bool, error) {
	now := a.nowFn()
	var expiration *int64
	if ttl > 0 {
		ms := now.Add(ttl).UnixMilli()
		expiration = &ms
	}

	acquired := false
	err := a.runSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := a.purgeExpiredTx(ctx, tx, key, now.UnixMilli()); err != nil {
			return err
		}
		if err := a.dropIfEmptyTx(ctx, tx, key); err != nil {
			return err
		}

		// stored limit wins while the record is live
		storedLimit := limit
		err := tx.QueryRow(ctx,
			`SELECT "limit" FROM semaphore WHERE key = $1 FOR UPDATE`, key,
		).Scan(&storedLimit)
		haveRecord := err == nil
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		var held bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM semaphore_slot WHERE key = $1 AND slot_id = $2)`,
			key, slotID,
		).Scan(&held); err != nil {
			return err
		}

		if !held {
			var live int
			if err := tx.QueryRow(ctx,
				`SELECT COUNT(*) FROM semaphore_slot WHERE key = $1`, key,
			).Scan(&live); err != nil {
				return err
			}
			if live >= storedLimit {
				return nil
			}
		}

		if !haveRecord {
			if _, err := tx.Exec(ctx,
				`INSERT INTO semaphore (key, "limit") VALUES ($1, $2)`,
				key, storedLimit); err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO semaphore_slot (key, slot_id, expiration)
			VALUES ($1, $2, $3)
			ON CONFLICT (key, slot_id) DO UPDATE SET expiration = EXCLUDED.expiration
		`, key, slotID, expiration); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	return acquired, err
}

func (a *SQLAdapter) Release(ctx context.Context, key, slotID string) error {
	released := false
	err := a.runSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := a.purgeExpiredTx(ctx, tx, key, a.nowFn().UnixMilli()); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx,
			`DELETE FROM semaphore_slot WHERE key = $1 AND slot_id = $2`, key, slotID)
		if err != nil {
			return err
		}
		released = tag.RowsAffected() > 0
		return a.dropIfEmptyTx(ctx, tx, key)
	})
	if err != nil {
		return err
	}
	if !released {
		return ErrSlotNotHeld
	}
	return nil
}

func (a *SQLAdapter) Refresh(ctx context.Context, key, slotID string, ttl time.Duration) error {
	now := a.nowFn()
	refreshed := false
	err := a.runSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE semaphore_slot SET expiration = $3
			WHERE key = $1 AND slot_id = $2
			  AND expiration IS NOT NULL AND expiration > $4
		`, key, slotID, now.Add(ttl).UnixMilli(), now.UnixMilli())
		if err != nil {
			return err
		}
		refreshed = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return err
	}
	if !refreshed {
		return ErrSlotNotHeld
	}
	return nil
}

func (a *SQLAdapter) ForceReleaseAll(ctx context.Context, key string) error {
	return a.runSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM semaphore_slot WHERE key = $1`, key); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM semaphore WHERE key = $1`, key)
		return err
	})
}

func (a *SQLAdapter) Inspect(ctx context.Context, key string) (State, error) {
	now := a.nowFn()
	var state State

	rows, err := a.pool.Query(ctx, `
		SELECT slot_id, expiration FROM semaphore_slot
		WHERE key = $1 AND (expiration IS NULL OR expiration > $2)
	`, key, now.UnixMilli())
	if err != nil {
		return State{}, fmt.Errorf("xsemaphore: sql inspect %q: %w", key, err)
	}
	defer rows.Close()
	for rows.Next() {
		var slot SlotState
		var expiration *int64
		if err := rows.Scan(&slot.SlotID, &expiration); err != nil {
			return State{}, err
		}
		if expiration != nil {
			slot.ExpiresAt = time.UnixMilli(*expiration)
		}
		state.Slots = append(state.Slots, slot)
	}
	if err := rows.Err(); err != nil {
		return State{}, err
	}
	if len(state.Slots) == 0 {
		return State{}, nil
	}

	err = a.pool.QueryRow(ctx, `SELECT "limit" FROM semaphore WHERE key = $1`, key).Scan(&state.Limit)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return State{}, fmt.Errorf("xsemaphore: sql inspect %q: %w", key, err)
	}
	return state, nil
}

func (a *SQLAdapter) sweepLoop() {
	defer a.sweepWG.Done()
	ticker := time.NewTicker(a.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.sweepStop:
			return
		case <-ticker.C:
			a.sweepOnceNow()
		}
	}
}

func (a *SQLAdapter) sweepOnceNow() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := a.pool.Exec(ctx,
		`DELETE FROM semaphore_slot WHERE expiration IS NOT NULL AND expiration <= $1`,
		a.nowFn().UnixMilli()); err != nil {
		a.logger.Warn("xsemaphore: sweep expired slots failed", "error", err)
		return
	}
	if _, err := a.pool.Exec(ctx, `
		DELETE FROM semaphore s
		WHERE NOT EXISTS (SELECT 1 FROM semaphore_slot WHERE key = s.key)
	`); err != nil {
		a.logger.Warn("xsemaphore: sweep orphaned limits failed", "error", err)
	}
}

// Close stops the background sweeper. The pool belongs to the caller.
func (a *SQLAdapter) Close(ctx context.Context) error {
	a.sweepOnce.Do(func() {
		if a.sweepInterval > 0 {
			close(a.sweepStop)
			a.sweepWG.Wait()
		}
	})
	return nil
}

var _ Adapter = (*SQLAdapter)(nil)
