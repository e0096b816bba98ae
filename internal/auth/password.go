package auth

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// Password policy.
const (
	// DefaultBcryptCost performs 2^12 rounds, roughly 100-250ms per hash.
	DefaultBcryptCost = 12

	// MinPasswordLength is counted in characters, not bytes.
	MinPasswordLength = 8

	// maxPasswordBytes is bcrypt's input limit; longer input would be truncated.
	maxPasswordBytes = 72
)

// ValidatePassword checks a candidate password against the strength rules.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	if len(password) > maxPasswordBytes {
		return ErrPasswordTooLong
	}
	return nil
}

// HashPassword validates and hashes a plaintext password with bcrypt.
// Each hash carries its own random salt.
func HashPassword(password string, cost int) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks a plaintext password against a bcrypt hash.
// A mismatch is reported as false with a nil error.
func VerifyPassword(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("comparing password: %w", err)
	}
}

// verifyPasswordContext runs VerifyPassword on its own goroutine so a slow
// comparison never holds up the caller past ctx cancellation.
func verifyPasswordContext(ctx context.Context, password, hash string) (bool, error) {
	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		ok, err := VerifyPassword(password, hash)
		done <- result{ok: ok, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, cancelled(ctx.Err())
	case r := <-done:
		return r.ok, r.err
	}
}

// cancelled wraps a context error as ErrLoginCancelled.
func cancelled(ctxErr error) error {
	return fmt.Errorf("%w: %w", ErrLoginCancelled, ctxErr)
}
