package rbac

import (
	"database/sql"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gatherhq/gather/pkg/observability"
	"github.com/gatherhq/gather/pkg/storage"
)

// testSchema mirrors the production migrations in SQLite dialect so the
// stores can run against an in-memory database.
const testSchema = `
	CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT,
		display_name TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE roles (
		role_id INTEGER PRIMARY KEY AUTOINCREMENT,
		namespace TEXT NOT NULL,
		subject_id TEXT,
		action TEXT NOT NULL,
		role_key TEXT NOT NULL UNIQUE,
		channel_id INTEGER,
		metadata TEXT,
		description TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE user_roles (
		user_id TEXT NOT NULL,
		role_id INTEGER NOT NULL,
		assigned_at TIMESTAMP NOT NULL,
		assigned_by TEXT,
		metadata TEXT,
		PRIMARY KEY (user_id, role_id)
	);

	CREATE TABLE invite_codes (
		code_id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT NOT NULL UNIQUE,
		role_keys TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		used_by TEXT,
		used_at TIMESTAMP,
		revoked_by TEXT,
		revoked_at TIMESTAMP
	);

	CREATE TABLE audit_events (
		event_id INTEGER PRIMARY KEY AUTOINCREMENT,
		occurred_at TIMESTAMP NOT NULL,
		event_type TEXT NOT NULL,
		status TEXT NOT NULL,
		actor_id TEXT,
		target_id TEXT,
		role_keys TEXT,
		resource_id TEXT,
		request_id TEXT,
		message TEXT
	);
`

// NewTestDB opens an in-memory SQLite database with the access-control
// schema applied.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	// A single shared connection keeps the in-memory database alive.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(testSchema); err != nil {
		db.Close()
		t.Fatalf("failed to apply test schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// NewTestMetrics builds metrics on a fresh registry per test.
func NewTestMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	return observability.NewMetrics(prometheus.NewRegistry())
}

// NewTestLogger builds a silent logger.
func NewTestLogger(t *testing.T) *observability.Logger {
	t.Helper()
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

// NewTestRedis starts a miniredis server and returns a connected
// client.
func NewTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

// NewTestRepository wires a full repository (sqlite store + miniredis
// cache) for tests that exercise the cache-then-store path.
func NewTestRepository(t *testing.T) (*Repository, *miniredis.Miniredis, *sql.DB) {
	t.Helper()

	db := NewTestDB(t)
	mr, client := NewTestRedis(t)

	logger := NewTestLogger(t)
	metrics := NewTestMetrics(t)
	cache := NewCache(client, testCacheConfig(), logger, metrics)
	repo := NewRepository(NewStore(db), cache, logger, metrics)
	return repo, mr, db
}

func testCacheConfig() storage.Config {
	cfg := storage.DefaultConfig()
	cfg.CacheEnabled = true
	return cfg
}

// SeedUser inserts a user row so foreign keys have a target.
func SeedUser(t *testing.T, db *sql.DB, userID string) {
	t.Helper()
	if _, err := db.Exec(
		`INSERT INTO users (id, email) VALUES (?, ?)`,
		userID, userID+"@example.com",
	); err != nil {
		t.Fatalf("failed to seed user %s: %v", userID, err)
	}
}
