// Package repository implements domain repository interfaces using SQLite.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"lakehouse/internal/domain"
)

// sqliteTimeLayout is the format of CURRENT_TIMESTAMP defaults.
const sqliteTimeLayout = "2006-01-02 15:04:05"

// withConn acquires one pooled connection for the duration of fn and
// always returns it to the pool.
func withConn(ctx context.Context, db *sql.DB, op string, fn func(*sql.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return &domain.TransactionError{Op: op, Err: err}
	}
	defer conn.Close() //nolint:errcheck
	return fn(conn)
}

// withTx runs fn inside a transaction on a scoped connection. The transaction
// is committed only if fn returns nil; otherwise it is rolled back.
func withTx(ctx context.Context, db *sql.DB, op string, fn func(*sql.Tx) error) error {
	return withConn(ctx, db, op, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return &domain.TransactionError{Op: op, Err: err}
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return &domain.TransactionError{Op: op, Err: err}
		}
		return nil
	})
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func mapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.NotFoundError{Message: "resource not found"}
	}
	return &domain.TransactionError{Op: op, Err: err}
}

func parseTimestamp(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(sqliteTimeLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
