package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// dummyPassword is hashed once per store and compared against when a
// username does not exist, so unknown users cost the same as known ones.
const dummyPassword = "newsdesk-timing-equaliser"

// CredentialStore owns user accounts and password verification.
type CredentialStore struct {
	users *SQLiteUserRepository
	cfg   Config

	dummyOnce sync.Once
	dummyHash string
}

// NewCredentialStore creates a credential store over the users table.
func NewCredentialStore(db *sql.DB, cfg Config) *CredentialStore {
	return &CredentialStore{
		users: NewUserRepository(db),
		cfg:   cfg.withDefaults(),
	}
}

// CreateUser validates and stores a new active account, returning its ID.
func (s *CredentialStore) CreateUser(ctx context.Context, nu NewUser) (string, error) {
	if !IsValidUsername(nu.Username) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUsername, nu.Username)
	}
	if !nu.Role.Valid() {
		return "", fmt.Errorf("%w: %d", ErrInvalidRole, int(nu.Role))
	}
	if err := ValidatePassword(nu.Password); err != nil {
		return "", err
	}

	// Fail fast before paying for a hash; the unique index still guards races.
	if _, err := s.users.GetByUsername(ctx, nu.Username); err == nil {
		return "", ErrDuplicateUsername
	} else if !errors.Is(err, ErrUserNotFound) {
		return "", err
	}

	hash, err := HashPassword(nu.Password, s.cfg.BcryptCost)
	if err != nil {
		return "", err
	}

	user := &User{
		Username:     nu.Username,
		Email:        nu.Email,
		PasswordHash: hash,
		Role:         nu.Role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return "", err
	}
	return user.ID, nil
}

// VerifyCredentials checks a username and password and records the login time.
// Unknown users, wrong passwords and inactive accounts all match
// ErrInvalidCredentials; inactive accounts additionally match ErrAccountInactive.
func (s *CredentialStore) VerifyCredentials(ctx context.Context, username, password string) (string, error) {
	user, err := s.authenticate(ctx, username, password)
	if err != nil {
		return "", err
	}
	if err := s.users.TouchLastLogin(ctx, user.ID, s.cfg.Now()); err != nil {
		return "", err
	}
	return user.ID, nil
}

// authenticate performs the read-only half of a login: lookup, password
// comparison and active check. It writes nothing.
func (s *CredentialStore) authenticate(ctx context.Context, username, password string) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cancelled(ctxErr)
		}
		if !errors.Is(err, ErrUserNotFound) {
			return nil, err
		}
		if _, err := verifyPasswordContext(ctx, password, s.timingHash()); errors.Is(err, ErrLoginCancelled) {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	ok, err := verifyPasswordContext(ctx, password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, ErrAccountInactive)
	}
	return user, nil
}

func (s *CredentialStore) timingHash() string {
	s.dummyOnce.Do(func() {
		h, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), s.cfg.BcryptCost)
		if err == nil {
			s.dummyHash = string(h)
		}
	})
	return s.dummyHash
}

// ChangePassword replaces a user's password after re-verifying the current one.
func (s *CredentialStore) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := verifyPasswordContext(ctx, current, user.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if !user.IsActive {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, ErrAccountInactive)
	}

	hash, err := HashPassword(next, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

// UpdateProfile edits an account on behalf of actor. A user may change
// their own email; only an admin may change role or active state, or
// edit another account.
func (s *CredentialStore) UpdateProfile(ctx context.Context, actor UserContext, targetID string, upd ProfileUpdate) (*User, error) {
	if !IsAdmin(actor) {
		if actor.UserID != targetID || upd.adminOnly() {
			return nil, ErrPermissionDenied
		}
	}
	if upd.Role != nil && !upd.Role.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, int(*upd.Role))
	}

	user, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if upd.Email != nil {
		user.Email = *upd.Email
	}
	if upd.Role != nil {
		user.Role = *upd.Role
	}
	if upd.IsActive != nil {
		user.IsActive = *upd.IsActive
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser returns a single account.
func (s *CredentialStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// ListUsers returns every account ordered by creation time.
func (s *CredentialStore) ListUsers(ctx context.Context) ([]User, error) {
	return s.users.List(ctx)
}
