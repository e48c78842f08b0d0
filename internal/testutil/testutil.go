// Package testutil provides shared helpers for hyperbatch integration tests.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pthm/hyperbatch/pgstore"
)

// Singleton container state
var (
	singletonOnce sync.Once
	singletonDSN  string
	singletonErr  error

	templateOnce sync.Once
	templateName string
	templateErr  error
)

// adminDSN returns the DSN of the server tests create databases on.
// DATABASE_URL selects an existing server; otherwise a PostgreSQL
// container is started once per test binary.
func adminDSN() (string, error) {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url, nil
	}

	singletonOnce.Do(func() {
		ctx := context.Background()

		container, err := postgres.Run(ctx,
			"postgres:18-alpine",
			postgres.WithDatabase("postgres"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithEnv(map[string]string{
				"POSTGRES_INITDB_ARGS": "--auth-host=trust",
			}),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			singletonErr = fmt.Errorf("failed to start PostgreSQL container: %w", err)
			return
		}

		dsn, err := container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			_ = container.Terminate(ctx)
			singletonErr = fmt.Errorf("failed to get PostgreSQL connection string: %w", err)
			return
		}
		singletonDSN = dsn
		// Container is not stored - ryuk will handle cleanup automatically
	})
	return singletonDSN, singletonErr
}

// ensureTemplate creates the template database with migrations applied.
func ensureTemplate(admin string) (string, error) {
	templateOnce.Do(func() {
		templateName = uniqueDBName("hyperbatch_template")

		if err := exec(context.Background(), admin, fmt.Sprintf("CREATE DATABASE %s", templateName)); err != nil {
			templateErr = fmt.Errorf("failed to create template database: %w", err)
			return
		}

		if err := migrate(replaceDBName(admin, templateName)); err != nil {
			templateErr = fmt.Errorf("failed to apply migrations: %w", err)
			return
		}

		// Non-fatal: copying works without the template flag.
		_ = exec(context.Background(), admin, fmt.Sprintf("ALTER DATABASE %s WITH is_template = true", templateName))
	})
	return templateName, templateErr
}

func migrate(dsn string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	return pgstore.Migrate(ctx, db)
}

// DB returns a migrated database for one test. Each call copies the
// template into a fresh database that is dropped when the test completes.
// Integration tests are skipped under -short.
func DB(tb testing.TB) *sql.DB {
	tb.Helper()
	if testing.Short() {
		tb.Skip("skipping integration test in short mode")
	}

	admin, err := adminDSN()
	require.NoError(tb, err, "failed to reach PostgreSQL")

	tmpl, err := ensureTemplate(admin)
	require.NoError(tb, err, "failed to create template database")

	name := uniqueDBName("test")
	terminate(admin, tmpl)
	err = exec(context.Background(), admin, fmt.Sprintf("CREATE DATABASE %s WITH TEMPLATE %s", name, tmpl))
	require.NoError(tb, err, "failed to create test database from template")

	return open(tb, admin, name)
}

// EmptyDB returns an unmigrated database for one test.
func EmptyDB(tb testing.TB) *sql.DB {
	tb.Helper()
	if testing.Short() {
		tb.Skip("skipping integration test in short mode")
	}

	admin, err := adminDSN()
	require.NoError(tb, err, "failed to reach PostgreSQL")

	name := uniqueDBName("empty")
	err = exec(context.Background(), admin, fmt.Sprintf("CREATE DATABASE %s", name))
	require.NoError(tb, err, "failed to create empty database")

	return open(tb, admin, name)
}

func open(tb testing.TB, admin, name string) *sql.DB {
	tb.Helper()

	db, err := sql.Open("pgx", replaceDBName(admin, name))
	require.NoError(tb, err, "failed to connect to test database")
	require.NoError(tb, db.Ping(), "failed to ping test database")

	tb.Cleanup(func() {
		_ = db.Close()

		// Drop in the background so cleanup does not block the test.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			terminate(admin, name)
			_ = exec(ctx, admin, fmt.Sprintf("DROP DATABASE IF EXISTS %s", name))
		}()
	})
	return db
}

// exec runs one statement on the admin database.
func exec(ctx context.Context, admin, stmt string) error {
	db, err := sql.Open("pgx", admin)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	_, err = db.ExecContext(ctx, stmt)
	return err
}

// terminate disconnects every session of a database so it can be copied
// or dropped.
func terminate(admin, name string) {
	_ = exec(context.Background(), admin, fmt.Sprintf(`
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE datname = '%s' AND pid <> pg_backend_pid()
	`, name))
}

func uniqueDBName(prefix string) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}

// replaceDBName replaces the database name in a postgres:// DSN.
func replaceDBName(dsn, newDB string) string {
	for i := len(dsn) - 1; i >= 0; i-- {
		if dsn[i] != '/' {
			continue
		}
		rest := ""
		for j := i + 1; j < len(dsn); j++ {
			if dsn[j] == '?' {
				rest = dsn[j:]
				break
			}
		}
		return dsn[:i+1] + newDB + rest
	}
	return dsn
}
