package auth

import (
	"context"
	"errors"
	"fmt"
)

// Bootstrap account created on first migration. The password is a known,
// documented value; logging in with it is reported as a warning until the
// operator changes it.
const (
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "changeme-admin"
)

// SeedAdmin creates the bootstrap admin account if no account named admin
// exists. It returns the admin's ID and whether it was created by this call.
// Pass a repository built on a transaction to seed atomically with other work.
func SeedAdmin(ctx context.Context, userRepo UserRepository, cost int, logger Logger) (string, bool, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	existing, err := userRepo.GetByUsername(ctx, DefaultAdminUsername)
	if err == nil {
		logger.Info("admin account exists, skipping seed", "user_id", existing.ID)
		return existing.ID, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return "", false, fmt.Errorf("checking for admin account: %w", err)
	}

	if cost == 0 {
		cost = DefaultBcryptCost
	}
	hash, err := HashPassword(DefaultAdminPassword, cost)
	if err != nil {
		return "", false, fmt.Errorf("hashing seed password: %w", err)
	}

	admin := &User{
		Username:     DefaultAdminUsername,
		PasswordHash: hash,
		Role:         RoleAdmin,
		IsActive:     true,
	}
	if err := userRepo.Create(ctx, admin); err != nil {
		return "", false, fmt.Errorf("creating seed admin: %w", err)
	}

	logger.Warn("seed admin account created",
		"username", DefaultAdminUsername,
		"action_required", "change the default password immediately",
	)
	return admin.ID, true, nil
}
