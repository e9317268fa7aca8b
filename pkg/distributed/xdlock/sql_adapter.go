package xdlock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// sqlTxKey is the context key under which runSerializable stashes the
// active pgx.Tx so Get/Upsert/Delete run inside it rather than against the
// bare pool.
type sqlTxKey struct{}

// sqlDatabaseAdapter implements DatabaseAdapter over the "lock" table
// (schema in internal/migrations), driven through a *pgxpool.Pool.
type sqlDatabaseAdapter struct {
	pool  *pgxpool.Pool
	table string
}

// NewSQLAdapter returns an Adapter backed by a PostgreSQL "lock" table,
// wrapping every operation in a serializable transaction via
// DatabaseAdapterBridge.
func NewSQLAdapter(pool *pgxpool.Pool) (*DatabaseAdapterBridge, error) {
	if pool == nil {
		return nil, ErrNilClient
	}
	db := &sqlDatabaseAdapter{pool: pool, table: "lock"}
	return NewDatabaseAdapterBridge("sql", db, db.runSerializable), nil
}

func (d *sqlDatabaseAdapter) runSerializable(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("xdlock: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(context.WithValue(ctx, sqlTxKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("xdlock: commit tx: %w", err)
	}
	return nil
}

func (d *sqlDatabaseAdapter) Get(ctx context.Context, key string) (string, int64, bool, error) {
	tx, _ := ctx.Value(sqlTxKey{}).(pgx.Tx)

	var owner string
	var expiresAtMs int64
	query := fmt.Sprintf(`SELECT owner, expires_at_ms FROM %s WHERE key = $1 FOR UPDATE`, d.table)

	var err error
	if tx != nil {
		err = tx.QueryRow(ctx, query, key).Scan(&owner, &expiresAtMs)
	} else {
		err = d.pool.QueryRow(ctx, query, key).Scan(&owner, &expiresAtMs)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return owner, expiresAtMs, true, nil
}

func (d *sqlDatabaseAdapter) Upsert(ctx context.Context, key, owner string, expiresAtMs int64) error {
	tx, _ := ctx.Value(sqlTxKey{}).(pgx.Tx)
	query := fmt.Sprintf(`
		INSERT INTO %s (key, owner, expires_at_ms)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET owner = EXCLUDED.owner, expires_at_ms = EXCLUDED.expires_at_ms
	`, d.table)
	var err error
	if tx != nil {
		_, err = tx.Exec(ctx, query, key, owner, expiresAtMs)
	} else {
		_, err = d.pool.Exec(ctx, query, key, owner, expiresAtMs)
	}
	return err
}

func (d *sqlDatabaseAdapter) Delete(ctx context.Context, key string) error {
	tx, _ := ctx.Value(sqlTxKey{}).(pgx.Tx)
	query := fmt.Sprintf(`DELETE FROM %s WHERE key = $1`, d.table)
	var err error
	if tx != nil {
		_, err = tx.Exec(ctx, query, key)
	} else {
		_, err = d.pool.Exec(ctx, query, key)
	}
	return err
}

var _ DatabaseAdapter = (*sqlDatabaseAdapter)(nil)
