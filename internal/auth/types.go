package auth

import (
	"fmt"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role is an authorisation tier. Roles are totally ordered; the zero value
// is "unauthenticated" and never appears in a UserContext.
type Role int

const (
	// RoleViewer can read what is visible to them but create nothing.
	RoleViewer Role = iota + 1

	// RoleUser owns and manages their own content.
	RoleUser

	// RoleAdmin manages accounts and sees every resource.
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleViewer: "viewer",
	RoleUser:   "user",
	RoleAdmin:  "admin",
}

// String returns the persisted name of the role.
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unauthenticated"
}

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole converts a persisted role name to a Role.
func ParseRole(s string) (Role, error) {
	for r, name := range roleNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// User represents a human account.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email,omitempty"`
	PasswordHash string     `json:"-"` // never serialised
	Role         Role       `json:"role"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Context returns the identity a validated caller carries.
func (u *User) Context() UserContext {
	return UserContext{UserID: u.ID, Username: u.Username, Role: u.Role}
}

// Session is a stored login. The raw token is never persisted.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// UserContext is the authorised identity passed into every collaborator call.
// It is never stored; ValidateSession builds a new one each time.
type UserContext struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// NewUser is the input for creating an account.
type NewUser struct {
	Username string
	Password string
	Email    string
	Role     Role
}

// ProfileUpdate carries the optional fields of an account edit.
// Nil fields are left unchanged.
type ProfileUpdate struct {
	Email    *string
	Role     *Role
	IsActive *bool
}

func (p ProfileUpdate) adminOnly() bool {
	return p.Role != nil || p.IsActive != nil
}
