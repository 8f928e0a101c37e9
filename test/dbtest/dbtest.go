// Package dbtest provisions an isolated Postgres schema per test: a shared
// testcontainer (or CI_DATABASE_URL, if set) holds the server, and each test
// gets its own schema with the Run Store's migrations applied and dropped
// on cleanup.
package dbtest

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/codeready-toolchain/leadpipe/pkg/storage"
)

var (
	sharedConnStr string
	containerOnce sync.Once
	containerErr  error
)

// NewStore provisions a fresh schema in the shared test Postgres, applies
// migrations into it, and returns a *storage.Store scoped to that schema.
// The schema is dropped when the test completes.
func NewStore(t *testing.T) *storage.Store {
	t.Helper()
	ctx := context.Background()

	connStr := sharedDatabase(t)
	schema := generateSchemaName(t)

	admin, err := sql.Open("pgx", connStr)
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	require.NoError(t, err)
	require.NoError(t, admin.Close())

	sep := "?"
	if strings.Contains(connStr, "?") {
		sep = "&"
	}
	scopedConnStr := fmt.Sprintf("%s%ssearch_path=%s", connStr, sep, schema)
	db, err := sqlx.Open("pgx", scopedConnStr)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)

	require.NoError(t, storage.ApplyMigrations(db.DB, schema))

	t.Cleanup(func() {
		dropCtx := context.Background()
		_, _ = db.ExecContext(dropCtx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema))
		_ = db.Close()
	})

	return storage.NewFromDB(db)
}

func sharedDatabase(t *testing.T) string {
	t.Helper()
	if ci := os.Getenv("CI_DATABASE_URL"); ci != "" {
		t.Log("using external Postgres from CI_DATABASE_URL")
		return ci
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("starting shared Postgres testcontainer")
		container, err := postgres.Run(ctx, "postgres:16-alpine",
			postgres.WithDatabase("leadpipe_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)))
		if err != nil {
			containerErr = err
			return
		}
		sharedConnStr, containerErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	require.NoError(t, containerErr)
	return sharedConnStr
}

func generateSchemaName(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 4)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	return "test_" + hex.EncodeToString(buf)
}
