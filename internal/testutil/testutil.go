package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	// Import pgx driver for database/sql compatibility in tests.
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/target/lessonhub/internal/migrate"
)

// TestDBConfig holds configuration for test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig returns default test database configuration.
// Defaults to port 55432 (local test DB from docker-compose test profile).
// CI/CD environments should set TEST_DB_PORT=5432 explicitly.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "lessonhub"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "lessonhub"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "lessonhub"),
	}
}

func (c TestDBConfig) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		c.User, c.Password, net.JoinHostPort(c.Host, c.Port), c.DBName)
}

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// SetupTestDB opens the test database, applies migrations and empties the gateway tables.
// The test is skipped when no database is reachable unless TEST_REQUIRE_DB is set.
func SetupTestDB(t TestingTB) *sql.DB {
	t.Helper()
	SkipIfNoTestDB(t)

	db, err := sql.Open("pgx", DefaultTestDBConfig().dsn())
	if err != nil {
		t.Fatal("Failed to open database:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if migrateErr := migrate.Run(ctx, db); migrateErr != nil {
		t.Fatal("Failed to run migrations:", migrateErr)
	}

	CleanupTestDB(t, db)
	return db
}

// CleanupTestDB removes all test data from the database.
func CleanupTestDB(t TestingTB, db *sql.DB) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Identities reference principals; delete them first.
	for _, table := range []string{"external_identities", "principals"} {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("Failed to clean up table %s: %v", table, err)
		}
	}
}

// TeardownTestDB cleans and closes the database connection.
func TeardownTestDB(t TestingTB, db *sql.DB) {
	t.Helper()
	if db == nil {
		return
	}
	CleanupTestDB(t, db)
	if err := db.Close(); err != nil {
		t.Fatal("Failed to close database:", err)
	}
}

// WithAutoDB sets up the test database, runs fn and tears it down.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	db := SetupTestDB(t)
	defer TeardownTestDB(t, db)
	fn(db)
}

// SkipIfNoTestDB skips the test if test database is not available.
func SkipIfNoTestDB(t TestingTB) {
	t.Helper()

	db, err := sql.Open("pgx", DefaultTestDBConfig().dsn())
	if err != nil {
		skipOrFail(t, "Test database not available:", err)
		return
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			t.Logf("test db close failed: %v", cerr)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		skipOrFail(t, "Test database not available:", pingErr)
	}
}

func skipOrFail(t TestingTB, args ...any) {
	if requireDB() {
		t.Fatal(args...)
	}
	t.Skip(args...)
}

// SetupTestRedis starts an in-process Redis server for the test and returns a
// client bound to it. Both are closed when the test ends.
func SetupTestRedis(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Logf("warning: failed to close redis client: %v", err)
		}
	})
	return client, mr
}

// FixedTimeFunc returns a clock that always reports t.
func FixedTimeFunc(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Clock is a settable clock for tests that move time forward.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now reports the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// TestTime returns a fixed, timezone-stable instant.
func TestTime() time.Time {
	return time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes"
}

func requireDB() bool { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
