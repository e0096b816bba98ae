package auth

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRegistry(t *testing.T) (*SessionRegistry, *CredentialStore, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	db := testDB(t)
	cfg := testConfig(clock)
	return NewSessionRegistry(db, cfg), NewCredentialStore(db, cfg), clock
}

func TestSessionRegistry_RoundTrip(t *testing.T) {
	reg, store, clock := newTestRegistry(t)
	ctx := context.Background()
	uid := seedTestUser(t, store, "alice", RoleUser)

	token, expiresAt, err := reg.CreateSession(ctx, uid)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if len(token) != 2*tokenBytes {
		t.Errorf("token length = %d, want %d hex chars", len(token), 2*tokenBytes)
	}
	if want := clock.Now().Add(DefaultSessionTTL); !expiresAt.Equal(want) {
		t.Errorf("expiresAt = %v, want %v", expiresAt, want)
	}

	uc, err := reg.ValidateSession(ctx, token)
	if err != nil {
		t.Fatalf("ValidateSession() error = %v", err)
	}
	if uc.UserID != uid || uc.Username != "alice" || uc.Role != RoleUser {
		t.Errorf("ValidateSession() = %+v", uc)
	}
}

func TestSessionRegistry_TokenNotStoredRaw(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	ctx := context.Background()
	uid := seedTestUser(t, store, "alice", RoleUser)

	token, _, err := reg.CreateSession(ctx, uid)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	var n int
	if err := reg.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions WHERE token_hash = ?", token).Scan(&n); err != nil {
		t.Fatalf("querying sessions: %v", err)
	}
	if n != 0 {
		t.Error("raw token found in sessions table")
	}
}

func TestSessionRegistry_ExpiryBoundary(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		wantErr error
	}{
		{"23h59m", 23*time.Hour + 59*time.Minute, nil},
		{"one nanosecond before expiry", 24*time.Hour - time.Nanosecond, nil},
		{"exactly at expiry", 24 * time.Hour, ErrSessionExpired},
		{"24h and 1s", 24*time.Hour + time.Second, ErrSessionExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, store, clock := newTestRegistry(t)
			ctx := context.Background()
			uid := seedTestUser(t, store, "alice", RoleUser)

			token, _, err := reg.CreateSession(ctx, uid)
			if err != nil {
				t.Fatalf("CreateSession() error = %v", err)
			}

			clock.Advance(tt.advance)
			_, err = reg.ValidateSession(ctx, token)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateSession() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSessionRegistry_CustomTTL(t *testing.T) {
	clock := newFakeClock()
	cfg := testConfig(clock)
	cfg.SessionTTL = time.Hour
	db := testDB(t)
	reg := NewSessionRegistry(db, cfg)
	uid := seedTestUser(t, NewCredentialStore(db, cfg), "alice", RoleUser)

	token, _, err := reg.CreateSession(context.Background(), uid)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	clock.Advance(time.Hour)
	if _, err := reg.ValidateSession(context.Background(), token); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("ValidateSession() error = %v, want ErrSessionExpired", err)
	}
}

func TestSessionRegistry_NotFound(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	for _, token := range []string{"", "deadbeef", "not-a-token"} {
		_, err := reg.ValidateSession(context.Background(), token)
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("ValidateSession(%q) error = %v, want ErrSessionNotFound", token, err)
		}
		if PublicMessage(err) != MsgSessionInvalid {
			t.Errorf("PublicMessage() = %q, want %q", PublicMessage(err), MsgSessionInvalid)
		}
	}
}

func TestSessionRegistry_DeactivationIsLazy(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	ctx := context.Background()
	uid := seedTestUser(t, store, "alice", RoleUser)

	tokens := make([]string, 3)
	for i := range tokens {
		tok, _, err := reg.CreateSession(ctx, uid)
		if err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		tokens[i] = tok
	}

	inactive := false
	if _, err := store.UpdateProfile(ctx, adminCtx, uid, ProfileUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}

	for _, tok := range tokens {
		if _, err := reg.ValidateSession(ctx, tok); !errors.Is(err, ErrAccountInactive) {
			t.Errorf("ValidateSession() error = %v, want ErrAccountInactive", err)
		}
	}

	n, err := NewSessionRepository(reg.db).CountForUser(ctx, uid)
	if err != nil {
		t.Fatalf("CountForUser() error = %v", err)
	}
	if n != len(tokens) {
		t.Errorf("session rows = %d, want %d untouched", n, len(tokens))
	}
}

func TestSessionRegistry_RoleChangeTakesEffect(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	ctx := context.Background()
	uid := seedTestUser(t, store, "alice", RoleUser)

	token, _, err := reg.CreateSession(ctx, uid)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	viewer := RoleViewer
	if _, err := store.UpdateProfile(ctx, adminCtx, uid, ProfileUpdate{Role: &viewer}); err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}

	uc, err := reg.ValidateSession(ctx, token)
	if err != nil {
		t.Fatalf("ValidateSession() error = %v", err)
	}
	if uc.Role != RoleViewer {
		t.Errorf("Role = %v, want %v on next validation", uc.Role, RoleViewer)
	}
}

func TestSessionRegistry_RevokeIdempotent(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	ctx := context.Background()
	uid := seedTestUser(t, store, "alice", RoleUser)

	token, _, err := reg.CreateSession(ctx, uid)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if err := reg.RevokeSession(ctx, token); err != nil {
		t.Fatalf("first RevokeSession() error = %v", err)
	}
	if err := reg.RevokeSession(ctx, token); err != nil {
		t.Errorf("second RevokeSession() error = %v, want nil", err)
	}
	if _, err := reg.ValidateSession(ctx, token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ValidateSession() after revoke error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionRegistry_ConcurrentSessionsIndependent(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	ctx := context.Background()
	uid := seedTestUser(t, store, "alice", RoleUser)

	first, _, _ := reg.CreateSession(ctx, uid)  //nolint:errcheck // validated below
	second, _, _ := reg.CreateSession(ctx, uid) //nolint:errcheck // validated below
	if first == second {
		t.Fatal("two sessions share a token")
	}

	if err := reg.RevokeSession(ctx, first); err != nil {
		t.Fatalf("RevokeSession() error = %v", err)
	}
	if _, err := reg.ValidateSession(ctx, second); err != nil {
		t.Errorf("revoking one session affected another: %v", err)
	}
}

func TestSessionRegistry_RevokeAllForUser(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	ctx := context.Background()
	alice := seedTestUser(t, store, "alice", RoleUser)
	bob := seedTestUser(t, store, "bob", RoleUser)

	for i := 0; i < 2; i++ {
		if _, _, err := reg.CreateSession(ctx, alice); err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
	}
	bobToken, _, _ := reg.CreateSession(ctx, bob) //nolint:errcheck // validated below

	n, err := reg.RevokeAllForUser(ctx, alice)
	if err != nil {
		t.Fatalf("RevokeAllForUser() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RevokeAllForUser() = %d, want 2", n)
	}
	if _, err := reg.ValidateSession(ctx, bobToken); err != nil {
		t.Errorf("other user's session revoked: %v", err)
	}
}

func TestSessionRegistry_SweepExpired(t *testing.T) {
	reg, store, clock := newTestRegistry(t)
	ctx := context.Background()
	uid := seedTestUser(t, store, "alice", RoleUser)

	old, _, _ := reg.CreateSession(ctx, uid) //nolint:errcheck // validated below
	clock.Advance(12 * time.Hour)
	fresh, _, _ := reg.CreateSession(ctx, uid) //nolint:errcheck // validated below

	// Exactly at the old session's expiry: not yet strictly before now.
	clock.Advance(12 * time.Hour)
	n, err := reg.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if n != 0 {
		t.Errorf("SweepExpired() at boundary = %d, want 0", n)
	}
	if _, err := reg.ValidateSession(ctx, old); !errors.Is(err, ErrSessionExpired) {
		t.Errorf("lazy expiry failed before sweep: %v", err)
	}

	clock.Advance(time.Second)
	n, err = reg.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("SweepExpired() = %d, want 1", n)
	}
	if _, err := reg.ValidateSession(ctx, old); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("swept session error = %v, want ErrSessionNotFound", err)
	}
	if _, err := reg.ValidateSession(ctx, fresh); err != nil {
		t.Errorf("unexpired session swept: %v", err)
	}
}

func TestSessionRegistry_RunSweeperStops(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		reg.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunSweeper() did not return after cancellation")
	}
}

func TestSessionRegistry_TokenCollisionRetries(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	ctx := context.Background()
	uid := seedTestUser(t, store, "alice", RoleUser)

	// Feed the same bytes twice, then different ones.
	calls := 0
	reg.randRead = func(b []byte) (int, error) {
		calls++
		fill := byte(0xAA)
		if calls > 2 {
			fill = 0xBB
		}
		copy(b, bytes.Repeat([]byte{fill}, len(b)))
		return len(b), nil
	}

	first, _, err := reg.CreateSession(ctx, uid)
	if err != nil {
		t.Fatalf("first CreateSession() error = %v", err)
	}
	second, _, err := reg.CreateSession(ctx, uid)
	if err != nil {
		t.Fatalf("second CreateSession() error = %v", err)
	}
	if first == second {
		t.Error("colliding token was issued twice")
	}
	if calls != 3 {
		t.Errorf("randRead calls = %d, want 3", calls)
	}
}

func TestSessionRegistry_TokenCollisionGivesUp(t *testing.T) {
	reg, store, _ := newTestRegistry(t)
	ctx := context.Background()
	uid := seedTestUser(t, store, "alice", RoleUser)

	reg.randRead = func(b []byte) (int, error) {
		for i := range b {
			b[i] = 0x01
		}
		return len(b), nil
	}

	if _, _, err := reg.CreateSession(ctx, uid); err != nil {
		t.Fatalf("first CreateSession() error = %v", err)
	}
	if _, _, err := reg.CreateSession(ctx, uid); !errors.Is(err, errTokenCollision) {
		t.Errorf("CreateSession() error = %v, want errTokenCollision", err)
	}
}

func TestSessionRegistry_UnknownUser(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	if _, _, err := reg.CreateSession(context.Background(), "usr-missing"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("CreateSession(missing) error = %v, want ErrUserNotFound", err)
	}
}
