// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dummyPasswordHash is used when a user doesn't exist to prevent timing
// attacks: password verification still runs so response time stays
// consistent. This is NOT a real credential.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Authenticator verifies credentials against the user store. It is a pure
// credential check: it never touches sessions or remember tokens, so it can
// be tested independently of storage concerns.
type Authenticator struct {
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator with a no-op logger.
func NewAuthenticator(users UserRepository, hasher PasswordHasher) (*Authenticator, error) {
	return NewAuthenticatorWithLogger(users, hasher, slog.New(slog.DiscardHandler))
}

// NewAuthenticatorWithLogger creates an Authenticator with the provided logger.
func NewAuthenticatorWithLogger(users UserRepository, hasher PasswordHasher, logger *slog.Logger) (*Authenticator, error) {
	if users == nil {
		return nil, oops.Errorf("users repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Authenticator{
		users:  users,
		hasher: hasher,
		logger: logger,
	}, nil
}

// Authenticate verifies a username/password pair and returns the user ID.
// The error never reveals whether the username existed. Verification runs
// against a dummy hash for unknown users to keep response time consistent.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (ulid.ULID, error) {
	user, lookupErr := a.users.GetByUsername(ctx, username)

	var targetHash string
	var userExists bool

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return ulid.ULID{}, oops.Code("AUTH_LOOKUP_FAILED").
				With("operation", "get user by username").
				Wrap(lookupErr)
		}
		targetHash = dummyPasswordHash
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := a.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			// Dummy-hash verification errors collapse to the generic failure.
			return ulid.ULID{}, oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid username or password")
		}
		return ulid.ULID{}, oops.Code("AUTH_VERIFY_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists || !valid {
		if userExists {
			user.RecordFailure()
			_ = a.users.Update(ctx, user) //nolint:errcheck // Best effort
		}
		return ulid.ULID{}, oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid username or password")
	}

	// Check lockout AFTER password verification to maintain constant time.
	if user.IsLocked() {
		return ulid.ULID{}, oops.Code("AUTH_ACCOUNT_LOCKED").
			With("locked_until", user.LockedUntil).
			Errorf("account is temporarily locked")
	}

	user.RecordSuccess()

	// Transparent hash upgrade (e.g., from bcrypt to argon2id).
	if a.hasher.NeedsUpgrade(user.PasswordHash) {
		if newHash, hashErr := a.hasher.Hash(password); hashErr == nil {
			user.PasswordHash = newHash
		}
	}

	// Persist reset failure count (and possibly upgraded hash). Best effort:
	// authentication succeeds regardless.
	_ = a.users.Update(ctx, user) //nolint:errcheck // Best effort

	return user.ID, nil
}

// Register creates a new account with a hashed password and returns it.
func (a *Authenticator) Register(ctx context.Context, username, password string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(username, hash)
	if err != nil {
		return nil, err
	}

	if err := a.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, oops.Code("AUTH_USERNAME_TAKEN").
				Errorf("username is already taken")
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "persist user").
			Wrap(err)
	}

	return user, nil
}
