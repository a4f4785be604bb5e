// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RememberTokenManager issues, resumes, and revokes long-lived remember-me
// tokens. Tokens are single-use: a successful resume consumes the presented
// token and returns a fresh one, limiting a stolen token to one use.
type RememberTokenManager struct {
	tokens RememberTokenRepository
	ttl    time.Duration
	logger *slog.Logger
}

// NewRememberTokenManager creates a RememberTokenManager with a no-op logger.
// ttl <= 0 falls back to DefaultRememberTTL.
func NewRememberTokenManager(tokens RememberTokenRepository, ttl time.Duration) (*RememberTokenManager, error) {
	return NewRememberTokenManagerWithLogger(tokens, ttl, slog.New(slog.DiscardHandler))
}

// NewRememberTokenManagerWithLogger creates a RememberTokenManager with the
// provided logger.
func NewRememberTokenManagerWithLogger(tokens RememberTokenRepository, ttl time.Duration, logger *slog.Logger) (*RememberTokenManager, error) {
	if tokens == nil {
		return nil, oops.Errorf("tokens repository is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if ttl <= 0 {
		ttl = DefaultRememberTTL
	}
	return &RememberTokenManager{
		tokens: tokens,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// TTL returns the configured token lifetime.
func (m *RememberTokenManager) TTL() time.Duration {
	return m.ttl
}

// Issue creates a new remember token for the user and returns the raw value.
// Only the hash is stored; the raw value is returned exactly once and the
// caller transmits it to the client as an HttpOnly, Secure, SameSite=Strict
// cookie.
func (m *RememberTokenManager) Issue(ctx context.Context, userID ulid.ULID) (string, error) {
	for attempt := 0; attempt < createAttempts; attempt++ {
		raw, tokenHash, err := GenerateToken()
		if err != nil {
			return "", oops.Code("TOKEN_ISSUE_FAILED").
				With("operation", "generate remember token").
				Wrap(err)
		}

		token, err := NewRememberToken(userID, tokenHash, time.Now().Add(m.ttl))
		if err != nil {
			return "", oops.Code("TOKEN_ISSUE_FAILED").
				With("operation", "construct remember token").
				Wrap(err)
		}

		err = m.tokens.Create(ctx, token)
		if err == nil {
			return raw, nil
		}
		if errors.Is(err, ErrDuplicate) {
			m.logger.Warn("remember token collision, regenerating",
				"attempt", attempt+1)
			continue
		}
		return "", oops.Code("TOKEN_ISSUE_FAILED").
			With("operation", "persist remember token").
			Wrap(err)
	}
	return "", oops.Code("TOKEN_ISSUE_FAILED").
		Errorf("remember token collided %d times", createAttempts)
}

// Resume verifies a raw remember token and, on success, consumes it and
// issues a replacement. Returns the owning user and the fresh raw token.
//
// The consume is atomic in the repository: of N concurrent resumes of the
// same token exactly one succeeds. An unknown (or already used) token fails
// with code TOKEN_INVALID; an expired one with TOKEN_EXPIRED. Both are
// reported to end users as a generic authentication failure by the facade
// but logged distinctly for audit.
func (m *RememberTokenManager) Resume(ctx context.Context, raw string) (ulid.ULID, string, error) {
	if raw == "" {
		return ulid.ULID{}, "", oops.Code("TOKEN_INVALID").Errorf("no remember token presented")
	}

	token, err := m.tokens.Consume(ctx, HashToken(raw))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ulid.ULID{}, "", oops.Code("TOKEN_INVALID").Errorf("remember token unknown or already used")
		}
		return ulid.ULID{}, "", oops.Code("TOKEN_RESUME_FAILED").
			With("operation", "consume remember token").
			Wrap(err)
	}

	if token.IsExpiredAt(time.Now()) {
		// Consume already removed the record, which is the required
		// cleanup for expired tokens.
		return ulid.ULID{}, "", oops.Code("TOKEN_EXPIRED").
			With("user_id", token.UserID.String()).
			With("expired_at", token.ExpiresAt).
			Errorf("remember token has expired")
	}

	replacement, err := m.Issue(ctx, token.UserID)
	if err != nil {
		// The presented token is already consumed; without a replacement the
		// client must authenticate with a password again. Fail closed.
		return ulid.ULID{}, "", oops.Code("TOKEN_RESUME_FAILED").
			With("operation", "issue replacement token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}

	return token.UserID, replacement, nil
}

// RevokeByToken resolves the owner of a raw remember token and revokes all
// of the owner's tokens. An unknown token is a no-op: logout is idempotent.
func (m *RememberTokenManager) RevokeByToken(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}

	token, err := m.tokens.GetByTokenHash(ctx, HashToken(raw))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("TOKEN_REVOKE_FAILED").
			With("operation", "resolve token owner").
			Wrap(err)
	}

	return m.Revoke(ctx, token.UserID)
}

// Revoke deletes all remember tokens for a user. Used at logout and on
// suspected compromise.
func (m *RememberTokenManager) Revoke(ctx context.Context, userID ulid.ULID) error {
	deleted, err := m.tokens.DeleteByUser(ctx, userID)
	if err != nil {
		return oops.Code("TOKEN_REVOKE_FAILED").
			With("operation", "delete user tokens").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if deleted > 0 {
		m.logger.Debug("revoked remember tokens",
			"user_id", userID.String(), "count", deleted)
	}
	return nil
}
