package store

import (
	"context"
	"database/sql"
)

// DBTX is the query surface SQL-backed stores need. Both *sqlx.DB and
// *sqlx.Tx satisfy it, which lets tests run a store inside a rolled-back
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}
