package xcache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// sqlCache implements Cache over a PostgreSQL "cache_entry" table (schema in
// internal/migrations), driven through a *pgxpool.Pool. Expiry is enforced
// at read time via a WHERE clause rather than relying solely on a cron
// sweeper, so a stale row never shows up as a hit even before it is reaped.
type sqlCache struct {
	pool  *pgxpool.Pool
	table string
	group string
}

// NewSQLCache returns a Cache backed by a PostgreSQL "cache_entry" table.
func NewSQLCache(pool *pgxpool.Pool) (Cache, error) {
	if pool == nil {
		return nil, ErrNilClient
	}
	return &sqlCache{pool: pool, table: "cache_entry"}, nil
}

func expiresAtMs(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return time.Now().Add(ttl).UnixMilli()
}

func (c *sqlCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	full := groupKey(c.group, key)
	var value []byte
	err := c.pool.QueryRow(ctx,
		`SELECT value FROM `+c.table+` WHERE key = $1 AND (expires_at_ms = 0 OR expires_at_ms > $2)`,
		full, time.Now().UnixMilli(),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *sqlCache) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	full := groupKey(c.group, key)
	var ok bool
	err := c.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var dummy int
		err := tx.QueryRow(ctx,
			`SELECT 1 FROM `+c.table+` WHERE key = $1 AND (expires_at_ms = 0 OR expires_at_ms > $2) FOR UPDATE`,
			full, time.Now().UnixMilli(),
		).Scan(&dummy)
		if err == nil {
			ok = false
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO `+c.table+` (key, value, expires_at_ms) VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at_ms = EXCLUDED.expires_at_ms
		`, full, value, expiresAtMs(ttl))
		if err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok, err
}

func (c *sqlCache) Update(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	full := groupKey(c.group, key)
	tag, err := c.pool.Exec(ctx, `
		UPDATE `+c.table+` SET value = $2, expires_at_ms = $3
		WHERE key = $1 AND (expires_at_ms = 0 OR expires_at_ms > $4)
	`, full, value, expiresAtMs(ttl), time.Now().UnixMilli())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (c *sqlCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	full := groupKey(c.group, key)
	_, err := c.pool.Exec(ctx, `
		INSERT INTO `+c.table+` (key, value, expires_at_ms) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at_ms = EXCLUDED.expires_at_ms
	`, full, value, expiresAtMs(ttl))
	return err
}

func (c *sqlCache) Remove(ctx context.Context, key string) error {
	full := groupKey(c.group, key)
	_, err := c.pool.Exec(ctx, `DELETE FROM `+c.table+` WHERE key = $1`, full)
	return err
}

func (c *sqlCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	full := groupKey(c.group, key)
	var next int64
	err := c.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var raw []byte
		var expMs int64
		err := tx.QueryRow(ctx,
			`SELECT value, expires_at_ms FROM `+c.table+` WHERE key = $1 FOR UPDATE`, full,
		).Scan(&raw, &expMs)
		var current int64
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			current = 0
			expMs = 0
		case err != nil:
			return err
		case expMs != 0 && expMs <= time.Now().UnixMilli():
			current = 0
		default:
			current, err = strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				return ErrTypeMismatch
			}
		}
		next = current + delta
		_, err = tx.Exec(ctx, `
			INSERT INTO `+c.table+` (key, value, expires_at_ms) VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, expires_at_ms = EXCLUDED.expires_at_ms
		`, full, []byte(strconv.FormatInt(next, 10)), expMs)
		return err
	})
	return next, err
}

func (c *sqlCache) Clear(ctx context.Context, groupPrefix string) error {
	prefix := groupKey(c.group, groupPrefix)
	_, err := c.pool.Exec(ctx, `DELETE FROM `+c.table+` WHERE key LIKE $1`, escapeLike(prefix)+"%")
	return err
}

func (c *sqlCache) WithGroup(group string) Cache {
	return &sqlCache{pool: c.pool, table: c.table, group: groupKey(c.group, group)}
}

func (c *sqlCache) withTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// escapeLike escapes LIKE metacharacters in prefix so group names containing
// "%" or "_" don't widen the match.
func escapeLike(prefix string) string {
	out := make([]byte, 0, len(prefix))
	for i := 0; i < len(prefix); i++ {
		switch prefix[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, prefix[i])
	}
	return string(out)
}

var _ Cache = (*sqlCache)(nil)
