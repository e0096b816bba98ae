package auth

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	// Token is the raw session token. It is shown to the caller once and
	// never stored.
	Token     string
	ExpiresAt time.Time
	Context   UserContext

	// UsingDefaultPassword is set when the account still has the documented
	// bootstrap password.
	UsingDefaultPassword bool
}

// Service is the contract collaborators use: login, session validation,
// logout and admin-gated account management.
type Service struct {
	creds    *CredentialStore
	sessions *SessionRegistry
	cfg      Config
	logger   Logger
	events   EventSink
}

// NewService wires a credential store and session registry over db.
func NewService(db *sql.DB, cfg Config) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		creds:    NewCredentialStore(db, cfg),
		sessions: NewSessionRegistry(db, cfg),
		cfg:      cfg,
		logger:   noopLogger{},
		events:   noopSink{},
	}
}

// SetLogger sets the logger for the service and its session registry.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
	s.sessions.SetLogger(logger)
}

// SetEventSink sets where account and session events are delivered.
func (s *Service) SetEventSink(sink EventSink) {
	s.events = sink
}

// Credentials returns the underlying credential store.
func (s *Service) Credentials() *CredentialStore {
	return s.creds
}

// Sessions returns the underlying session registry.
func (s *Service) Sessions() *SessionRegistry {
	return s.sessions
}

// Login verifies credentials and issues a session. The password comparison
// runs off the caller's goroutine; if ctx is cancelled before the session is
// committed, ErrLoginCancelled is returned and nothing is written.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := s.creds.authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrLoginCancelled) {
			s.logger.Debug("login cancelled", "username", username)
			return nil, err
		}
		s.logger.Info("login failed", "username", username, "reason", failureReason(err))
		s.emit(ctx, Event{Type: EventLoginFailed, Username: username, Reason: failureReason(err)})
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, cancelled(err)
	}

	token, expiresAt, err := s.sessions.issue(ctx, user.ID, true)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, cancelled(ctxErr)
		}
		return nil, fmt.Errorf("creating session: %w", err)
	}

	result := &LoginResult{
		Token:                token,
		ExpiresAt:            expiresAt,
		Context:              user.Context(),
		UsingDefaultPassword: subtle.ConstantTimeCompare([]byte(password), []byte(DefaultAdminPassword)) == 1,
	}

	s.logger.Info("login succeeded", "user_id", user.ID, "username", user.Username, "role", user.Role.String())
	if result.UsingDefaultPassword {
		s.logger.Warn("account is using the default password",
			"username", user.Username,
			"action_required", "change this password immediately",
		)
	}
	s.emit(ctx, Event{Type: EventLogin, UserID: user.ID, Username: user.Username, Success: true})

	return result, nil
}

// ValidateSession resolves a token to the caller's current identity.
func (s *Service) ValidateSession(ctx context.Context, token string) (UserContext, error) {
	return s.sessions.ValidateSession(ctx, token)
}

// Logout revokes a session. Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	uc, verr := s.sessions.ValidateSession(ctx, token)
	if err := s.sessions.RevokeSession(ctx, token); err != nil {
		return err
	}
	if verr == nil {
		s.emit(ctx, Event{Type: EventLogout, UserID: uc.UserID, Username: uc.Username, Success: true})
	}
	return nil
}

// CreateUser creates an account. Admin only.
func (s *Service) CreateUser(ctx context.Context, actor UserContext, nu NewUser) (string, error) {
	if err := Require(actor, RoleAdmin); err != nil {
		return "", err
	}
	id, err := s.creds.CreateUser(ctx, nu)
	if err != nil {
		return "", err
	}
	s.logger.Info("user created", "user_id", id, "username", nu.Username, "role", nu.Role.String(), "by", actor.UserID)
	s.emit(ctx, Event{Type: EventUserCreated, ActorID: actor.UserID, UserID: id, Username: nu.Username, Success: true})
	return id, nil
}

// ListUsers returns every account. Admin only.
func (s *Service) ListUsers(ctx context.Context, actor UserContext) ([]User, error) {
	if err := Require(actor, RoleAdmin); err != nil {
		return nil, err
	}
	return s.creds.ListUsers(ctx)
}

// UpdateUser edits an account. Users may change their own email; admins
// may change anything but the username. Deactivating an account invalidates
// its sessions on their next validation.
func (s *Service) UpdateUser(ctx context.Context, actor UserContext, id string, upd ProfileUpdate) (*User, error) {
	user, err := s.creds.UpdateProfile(ctx, actor, id, upd)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user updated", "user_id", id, "by", actor.UserID)
	s.emit(ctx, Event{Type: EventUserUpdated, ActorID: actor.UserID, UserID: id, Username: user.Username, Success: true})
	return user, nil
}

// ChangePassword changes the caller's own password.
func (s *Service) ChangePassword(ctx context.Context, actor UserContext, current, next string) error {
	if err := Require(actor, RoleViewer); err != nil {
		return err
	}
	if err := s.creds.ChangePassword(ctx, actor.UserID, current, next); err != nil {
		return err
	}
	s.logger.Info("password changed", "user_id", actor.UserID)
	s.emit(ctx, Event{Type: EventPasswordChanged, ActorID: actor.UserID, UserID: actor.UserID, Username: actor.Username, Success: true})
	return nil
}

// ForceLogout revokes every session of userID. Admin only.
func (s *Service) ForceLogout(ctx context.Context, actor UserContext, userID string) (int64, error) {
	if err := Require(actor, RoleAdmin); err != nil {
		return 0, err
	}
	n, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("sessions revoked", "user_id", userID, "count", n, "by", actor.UserID)
	s.emit(ctx, Event{Type: EventForceLogout, ActorID: actor.UserID, UserID: userID, Success: true})
	return n, nil
}

// emit delivers an event even when the caller's context is already done.
func (s *Service) emit(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = s.cfg.Now().UTC()
	}
	s.events.RecordEvent(context.WithoutCancel(ctx), e)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "error"
	}
}
