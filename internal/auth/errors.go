package auth

import "errors"

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session has expired")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
	ErrLoginCancelled     = errors.New("login cancelled")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidRole        = errors.New("invalid role")
)

// Messages shown to callers in place of internal error detail.
const (
	MsgInvalidLogin   = "invalid username or password"
	MsgSessionInvalid = "session invalid, please log in again"
)

// verbatimErrors are safe to show as-is; the caller already knows what
// they asked for.
var verbatimErrors = []error{
	ErrPermissionDenied,
	ErrDuplicateUsername,
	ErrWeakPassword,
	ErrPasswordTooLong,
	ErrInvalidUsername,
	ErrInvalidRole,
	ErrUserNotFound,
	ErrLoginCancelled,
}

// PublicMessage returns the text that may be shown to an end user for err.
// Credential and account-state failures collapse into one message, as do
// missing and expired sessions.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrAccountInactive):
		return MsgInvalidLogin
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExpired):
		return MsgSessionInvalid
	}
	for _, sentinel := range verbatimErrors {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal error"
}
