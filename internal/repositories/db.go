package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the connection handle every repository is built on.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// withTx runs fn inside a transaction. The transaction commits only if fn
// returns nil; a failed commit is reported to the caller.
func withTx(ctx context.Context, db DB, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()
	return fn(tx)
}

// isNoRows reports whether err is pgx's "no rows" result.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
