package xbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type sqlTxKey struct{}

// sqlStore implements RecordStore over a PostgreSQL "circuit_breaker"
// table (schema in internal/migrations), one row per breaker key.
type sqlStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewSQLAdapter returns an Adapter backed by PostgreSQL, wrapping every
// Transition in a serializable transaction.
func NewSQLAdapter(pool *pgxpool.Pool) (*Adapter, error) {
	if pool == nil {
		return nil, ErrNilClient
	}
	s := &sqlStore{pool: pool, table: "circuit_breaker"}
	return NewAdapter("sql", s, s.runSerializable), nil
}

func (s *sqlStore) runSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("xbreaker: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, sqlTxKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("xbreaker: commit tx: %w", err)
	}
	return nil
}

func (s *sqlStore) Load(ctx context.Context, key string) (Record, bool, error) {
	tx, _ := ctx.Value(sqlTxKey{}).(pgx.Tx)

	var (
		state                                                      int
		requests, totalSuccesses, totalFailures                    uint32
		consecutiveSuccesses, consecutiveFailures                  uint32
		windowStartMs, openExpiresAtMs                             int64
	)
	query := fmt.Sprintf(`
		SELECT state, requests, total_successes, total_failures,
		       consecutive_successes, consecutive_failures,
		       window_start_ms, open_expires_at_ms
		FROM %s WHERE key = $1 FOR UPDATE`, s.table)

	var row pgx.Row
	if tx != nil {
		row = tx.QueryRow(ctx, query, key)
	} else {
		row = s.pool.QueryRow(ctx, query, key)
	}
	err := row.Scan(&state, &requests, &totalSuccesses, &totalFailures,
		&consecutiveSuccesses, &consecutiveFailures, &windowStartMs, &openExpiresAtMs)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	return Record{
		State: State(state),
		Metrics: Metrics{
			Requests:             requests,
			TotalSuccesses:       totalSuccesses,
			TotalFailures:        totalFailures,
			ConsecutiveSuccesses: consecutiveSuccesses,
			ConsecutiveFailures:  consecutiveFailures,
			WindowStart:          msToTime(windowStartMs),
		},
		OpenExpiresAt: msToTime(openExpiresAtMs),
	}, true, nil
}

func (s *sqlStore) Save(ctx context.Context, key string, rec Record) error {
	tx, _ := ctx.Value(sqlTxKey{}).(pgx.Tx)
	query := fmt.Sprintf(`
		INSERT INTO %s (key, state, requests, total_successes, total_failures,
		                 consecutive_successes, consecutive_failures,
		                 window_start_ms, open_expires_at_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (key) DO UPDATE SET
			state = EXCLUDED.state,
			requests = EXCLUDED.requests,
			total_successes = EXCLUDED.total_successes,
			total_failures = EXCLUDED.total_failures,
			consecutive_successes = EXCLUDED.consecutive_successes,
			consecutive_failures = EXCLUDED.consecutive_failures,
			window_start_ms = EXCLUDED.window_start_ms,
			open_expires_at_ms = EXCLUDED.open_expires_at_ms
	`, s.table)

	args := []any{
		key, int(rec.State), rec.Metrics.Requests, rec.Metrics.TotalSuccesses, rec.Metrics.TotalFailures,
		rec.Metrics.ConsecutiveSuccesses, rec.Metrics.ConsecutiveFailures,
		timeToMs(rec.Metrics.WindowStart), timeToMs(rec.OpenExpiresAt),
	}

	var err error
	if tx != nil {
		_, err = tx.Exec(ctx, query, args...)
	} else {
		_, err = s.pool.Exec(ctx, query, args...)
	}
	return err
}

func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func timeToMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

var _ RecordStore = (*sqlStore)(nil)
