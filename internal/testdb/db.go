//go:build integration

package testdb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/scribe/internal/platform/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestTimeout defines a default timeout for test database operations.
const TestTimeout = 60 * time.Second

const (
	containerImage = "postgres:16-alpine"
	containerUser  = "scribe"
	containerDB    = "scribe_test"
)

// GetTestDatabaseURL returns the database URL for tests. It checks
// SCRIBE_TEST_DB_URL and DATABASE_URL in that order.
func GetTestDatabaseURL() string {
	if dbURL := os.Getenv("SCRIBE_TEST_DB_URL"); dbURL != "" {
		return dbURL
	}
	return os.Getenv("DATABASE_URL")
}

// Open returns a migrated connection for the test. The connection, and the
// container if one was started, are released when the test ends.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dbURL := GetTestDatabaseURL()
	if dbURL == "" {
		dbURL = startContainer(ctx, t)
	}

	db, err := postgres.Open(ctx, dbURL, logger)
	require.NoError(t, err, "failed to connect to %s", postgres.MaskDatabaseURL(dbURL))
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, postgres.Migrate(ctx, db.DB, "up", logger), "failed to apply migrations")
	return db
}

func startContainer(ctx context.Context, t *testing.T) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        containerImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     containerUser,
			"POSTGRES_PASSWORD": containerUser,
			"POSTGRES_DB":       containerDB,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(TestTimeout),
	}

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Errorf("failed to terminate container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		containerUser, containerUser, host, port.Port(), containerDB)
}

// WithTx runs fn within a transaction that is always rolled back, so tests
// sharing a database do not see each other's rows.
func WithTx(t *testing.T, db *sqlx.DB, fn func(t *testing.T, tx *sqlx.Tx)) {
	t.Helper()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err, "failed to begin transaction")
	defer func() {
		_ = tx.Rollback()
	}()

	fn(t, tx)
}
