// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultRememberTTL is the remember-token lifetime used when no
// configuration value is supplied.
const DefaultRememberTTL = 30 * 24 * time.Hour

// RememberToken is a persistent single-use credential that re-establishes a
// session without a password. TokenHash is the SHA-256 hash of the raw value
// sent to the client; the raw value exists only transiently.
type RememberToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// NewRememberToken creates a validated RememberToken instance.
func NewRememberToken(userID ulid.ULID, tokenHash string, expiresAt time.Time) (*RememberToken, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("TOKEN_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("TOKEN_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("TOKEN_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}

	return &RememberToken{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		IssuedAt:  time.Now(),
		ExpiresAt: expiresAt,
	}, nil
}

// IsExpiredAt returns true if the token would be expired at the given time.
func (t *RememberToken) IsExpiredAt(at time.Time) bool {
	return at.After(t.ExpiresAt)
}

// RememberTokenRepository manages remember-token persistence.
type RememberTokenRepository interface {
	// Create stores a new remember token. Returns ErrDuplicate if a record
	// with the same token hash already exists.
	Create(ctx context.Context, token *RememberToken) error

	// GetByTokenHash retrieves a token by its hash without consuming it.
	GetByTokenHash(ctx context.Context, tokenHash string) (*RememberToken, error)

	// Consume atomically removes the token with the given hash and returns
	// it. Of N concurrent Consume calls for the same hash exactly one
	// receives the record; the rest get ErrNotFound.
	Consume(ctx context.Context, tokenHash string) (*RememberToken, error)

	// DeleteByUser removes all tokens for a user and returns the count.
	DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error)

	// DeleteExpiredBefore removes tokens that expired before the given time
	// and returns the count of deleted records.
	DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error)
}
