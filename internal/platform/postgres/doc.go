// Package postgres provides the PostgreSQL implementation of
// store.TranscriptStore, the connection setup used by the server, and the
// embedded goose migrations that create its schema.
//
// Connections use the pgx stdlib driver wrapped in sqlx; pgconn error codes
// are translated to store errors by MapError.
package postgres
