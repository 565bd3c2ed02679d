// Package pgxutil reaches the native pgx connection behind a database/sql pool,
// so repositories can use pgx row collection and typed arrays.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// ErrNotPgx is returned when the pool was not opened with the pgx stdlib driver.
var ErrNotPgx = errors.New("pgxutil: driver connection is not *stdlib.Conn")

// WithConn checks a connection out of db and runs fn with the underlying *pgx.Conn.
// The connection goes back to the pool when fn returns.
func WithConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) (err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil && !errors.Is(closeErr, sql.ErrConnDone) {
			err = errors.Join(err, fmt.Errorf("release conn: %w", closeErr))
		}
	}()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return ErrNotPgx
		}
		return fn(std.Conn())
	})
}

// WithTx runs fn inside a pgx transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func WithTx(ctx context.Context, db *sql.DB, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	return WithConn(ctx, db, func(conn *pgx.Conn) error {
		tx, err := conn.BeginTx(ctx, opts)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if fnErr := fn(tx); fnErr != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				return errors.Join(fnErr, fmt.Errorf("rollback: %w", rbErr))
			}
			return fnErr
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}
