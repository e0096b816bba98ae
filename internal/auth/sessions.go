package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/newsdesk/internal/infrastructure/database"
)

const (
	// tokenBytes gives 256 bits of randomness per session token.
	tokenBytes = 32

	// maxTokenAttempts bounds retries when a generated token hash already exists.
	maxTokenAttempts = 3
)

// SessionRegistry issues, validates and revokes opaque session tokens.
type SessionRegistry struct {
	db     *sql.DB
	cfg    Config
	logger Logger

	// randRead is the token entropy source.
	randRead func([]byte) (int, error)
}

// NewSessionRegistry creates a session registry over the sessions table.
func NewSessionRegistry(db *sql.DB, cfg Config) *SessionRegistry {
	return &SessionRegistry{
		db:       db,
		cfg:      cfg.withDefaults(),
		logger:   noopLogger{},
		randRead: rand.Read,
	}
}

// SetLogger sets the logger for the registry.
func (r *SessionRegistry) SetLogger(logger Logger) {
	r.logger = logger
}

// TTL returns the fixed session lifetime.
func (r *SessionRegistry) TTL() time.Duration {
	return r.cfg.SessionTTL
}

// CreateSession issues a new session for userID and returns the raw token
// and its expiry. The raw token is not retrievable afterwards.
func (r *SessionRegistry) CreateSession(ctx context.Context, userID string) (string, time.Time, error) {
	return r.issue(ctx, userID, false)
}

// issue inserts a session in its own transaction. When recordLogin is set,
// the user's last_login_at is updated in the same transaction.
func (r *SessionRegistry) issue(ctx context.Context, userID string, recordLogin bool) (string, time.Time, error) {
	now := r.cfg.Now()
	expiresAt := now.Add(r.cfg.SessionTTL)

	for attempt := 1; attempt <= maxTokenAttempts; attempt++ {
		token, err := r.newToken()
		if err != nil {
			return "", time.Time{}, err
		}

		err = database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
			if recordLogin {
				if err := NewUserRepository(tx).TouchLastLogin(ctx, userID, now); err != nil {
					return err
				}
			}
			return NewSessionRepository(tx).Create(ctx, &Session{
				TokenHash: HashToken(token),
				UserID:    userID,
				CreatedAt: now,
				ExpiresAt: expiresAt,
			})
		})
		if errors.Is(err, errTokenCollision) {
			r.logger.Warn("session token collision, regenerating", "attempt", attempt)
			continue
		}
		if err != nil {
			return "", time.Time{}, err
		}
		return token, expiresAt, nil
	}
	return "", time.Time{}, fmt.Errorf("issuing session: %w", errTokenCollision)
}

func (r *SessionRegistry) newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := r.randRead(b); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidateSession resolves a raw token to a freshly built UserContext.
// A session is valid while now is before its expiry and its user is active.
func (r *SessionRegistry) ValidateSession(ctx context.Context, token string) (UserContext, error) {
	if token == "" {
		return UserContext{}, ErrSessionNotFound
	}

	sess, err := NewSessionRepository(r.db).GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		return UserContext{}, err
	}
	if sess.Expired(r.cfg.Now()) {
		return UserContext{}, ErrSessionExpired
	}

	user, err := NewUserRepository(r.db).GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return UserContext{}, ErrSessionNotFound
		}
		return UserContext{}, err
	}
	if !user.IsActive {
		return UserContext{}, ErrAccountInactive
	}
	return user.Context(), nil
}

// RevokeSession deletes the session for token. Revoking an unknown or
// already revoked token succeeds.
func (r *SessionRegistry) RevokeSession(ctx context.Context, token string) error {
	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		return NewSessionRepository(tx).Delete(ctx, HashToken(token))
	})
}

// RevokeAllForUser deletes every session belonging to userID.
func (r *SessionRegistry) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		n, err = NewSessionRepository(tx).DeleteAllForUser(ctx, userID)
		return err
	})
	return n, err
}

// SweepExpired deletes sessions whose expiry has passed. It is storage
// hygiene only; ValidateSession rejects expired sessions regardless.
func (r *SessionRegistry) SweepExpired(ctx context.Context) (int64, error) {
	var n int64
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		n, err = NewSessionRepository(tx).DeleteExpired(ctx, r.cfg.Now())
		return err
	})
	return n, err
}

// RunSweeper calls SweepExpired every interval until ctx is cancelled.
func (r *SessionRegistry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					r.logger.Error("sweeping expired sessions", "error", err)
				}
				continue
			}
			if n > 0 {
				r.logger.Info("expired sessions swept", "count", n)
			}
		}
	}
}
