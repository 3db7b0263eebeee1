/*
Database Interfaces for SyncGuard State Management

Features:
- Common interface for database operations
- Support for both DB and Transaction contexts

Author: SyncGuard Team
Update History:
- 2026-10-10: Narrowed to the methods the stores use
*/

package state

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// DBInterface is implemented by both *DB and a wrapped *sqlx.Tx.
type DBInterface interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
	Rebind(query string) string

	// Transaction support (only available on *DB)
	WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// Ensure *DB implements DBInterface.
var _ DBInterface = (*DB)(nil)

// txWrapper wraps a transaction to implement DBInterface.
type txWrapper struct {
	*sqlx.Tx
}

// WithTx on a transaction just executes the function with itself.
func (t *txWrapper) WithTx(_ context.Context, fn func(*sqlx.Tx) error) error {
	return fn(t.Tx)
}

// Ensure txWrapper implements DBInterface.
var _ DBInterface = (*txWrapper)(nil)

// WrapTx wraps a transaction to implement DBInterface.
func WrapTx(tx *sqlx.Tx) DBInterface {
	return &txWrapper{Tx: tx}
}
