package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/newsdesk/internal/infrastructure/database"
	_ "github.com/nerrad567/newsdesk/migrations" // registers the schema
	"golang.org/x/crypto/bcrypt"
)

// testPassword satisfies the password policy and is used for every seeded user.
const testPassword = "longenough1"

// testDB opens a temp-file SQLite database with all migrations applied.
// WAL mode needs a real file; the directory is removed when the test ends.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if _, err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db.DB
}

// fakeClock is a settable clock for expiry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testConfig uses the cheapest bcrypt cost so tests stay fast.
func testConfig(clock *fakeClock) Config {
	return Config{BcryptCost: bcrypt.MinCost, Now: clock.Now}
}

// seedTestUser creates an active user with testPassword and returns its ID.
func seedTestUser(t *testing.T, store *CredentialStore, username string, role Role) string {
	t.Helper()

	id, err := store.CreateUser(context.Background(), NewUser{
		Username: username,
		Password: testPassword,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return id
}

// recordingSink captures emitted events.
type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) RecordEvent(_ context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *recordingSink) types() []EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventType, len(s.events))
	for i, e := range s.events {
		out[i] = e.Type
	}
	return out
}
