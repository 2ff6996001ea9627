package rbac

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// TestDatabaseEnv names the PostgreSQL DSN used by database-backed tests
const TestDatabaseEnv = "GATEHOUSE_TEST_POSTGRES"

// SQLiteTestSchema creates the RBAC tables in SQLite for in-memory tests. The
// store's queries run unchanged against it.
const SQLiteTestSchema = `
	CREATE TABLE organizations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		organization_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(organization_id, name)
	);

	CREATE TABLE items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		user_id INTEGER UNIQUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE item2orga (
		item_id INTEGER NOT NULL,
		organization_id INTEGER NOT NULL
	);

	CREATE TABLE item2role (
		item_id INTEGER NOT NULL,
		role_id INTEGER NOT NULL
	);

	CREATE TABLE itemtypes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		organization_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		UNIQUE(organization_id, name)
	);

	CREATE TABLE permissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		itemtype_id INTEGER NOT NULL,
		item_id INTEGER,
		role_id INTEGER NOT NULL,
		permission TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

// SkipIfNoDatabase skips the test if the test DSN is not set and returns it otherwise.
func SkipIfNoDatabase(t *testing.T) string {
	t.Helper()

	dbURL := os.Getenv(TestDatabaseEnv)
	if dbURL == "" {
		t.Skipf("Skipping test: %s environment variable not set (database not available)", TestDatabaseEnv)
	}

	return dbURL
}

// RequireDatabase connects to the test database and applies the RBAC migrations,
// or skips the test if no database is available.
func RequireDatabase(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	dbURL := SkipIfNoDatabase(t)

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("Failed to connect to database: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Database not reachable: %v", err)
	}

	if err := RunMigrations(context.Background(), db, nil); err != nil {
		db.Close()
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

// IsDatabaseAvailable returns true if the test DSN is set (does not test connection).
func IsDatabaseAvailable() bool {
	return os.Getenv(TestDatabaseEnv) != ""
}
