// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// RememberTokenRepository implements auth.RememberTokenRepository using
// PostgreSQL.
type RememberTokenRepository struct {
	pool Pool
}

// NewRememberTokenRepository creates a new RememberTokenRepository.
func NewRememberTokenRepository(pool Pool) *RememberTokenRepository {
	return &RememberTokenRepository{pool: pool}
}

// Create stores a new remember token.
func (r *RememberTokenRepository) Create(ctx context.Context, token *auth.RememberToken) error {
	return withRetry(ctx, "insert remember token", func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO remember_tokens (id, user_id, token_hash, issued_at, expires_at)
			VALUES ($1, $2, $3, $4, $5)
		`,
			token.ID.String(),
			token.UserID.String(),
			token.TokenHash,
			token.IssuedAt,
			token.ExpiresAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return oops.Code("TOKEN_DUPLICATE").Wrap(auth.ErrDuplicate)
			}
			return oops.Code("TOKEN_CREATE_FAILED").
				With("operation", "insert remember token").
				With("user_id", token.UserID.String()).
				Wrap(err)
		}
		return nil
	})
}

// GetByTokenHash retrieves a token by its hash without consuming it.
func (r *RememberTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.RememberToken, error) {
	var token *auth.RememberToken
	err := withRetry(ctx, "get remember token", func(ctx context.Context) error {
		row := r.pool.QueryRow(ctx, `
			SELECT id, user_id, token_hash, issued_at, expires_at
			FROM remember_tokens
			WHERE token_hash = $1
		`, tokenHash)

		var scanErr error
		token, scanErr = scanRememberToken(row)
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		if scanErr != nil {
			return oops.Code("TOKEN_GET_FAILED").
				With("operation", "get remember token").
				Wrap(scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Consume atomically removes and returns the token with the given hash.
// The single DELETE ... RETURNING statement guarantees exactly one winner
// for concurrent calls with the same token.
func (r *RememberTokenRepository) Consume(ctx context.Context, tokenHash string) (*auth.RememberToken, error) {
	var token *auth.RememberToken
	err := withRetry(ctx, "consume remember token", func(ctx context.Context) error {
		row := r.pool.QueryRow(ctx, `
			DELETE FROM remember_tokens
			WHERE token_hash = $1
			RETURNING id, user_id, token_hash, issued_at, expires_at
		`, tokenHash)

		var scanErr error
		token, scanErr = scanRememberToken(row)
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return oops.Code("TOKEN_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		if scanErr != nil {
			return oops.Code("TOKEN_CONSUME_FAILED").
				With("operation", "consume remember token").
				Wrap(scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return token, nil
}

// DeleteByUser removes all tokens for a user.
func (r *RememberTokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	var deleted int64
	err := withRetry(ctx, "delete remember tokens by user", func(ctx context.Context) error {
		result, err := r.pool.Exec(ctx, `DELETE FROM remember_tokens WHERE user_id = $1`, userID.String())
		if err != nil {
			return oops.Code("TOKEN_DELETE_BY_USER_FAILED").
				With("operation", "delete remember tokens by user").
				With("user_id", userID.String()).
				Wrap(err)
		}
		deleted = result.RowsAffected()
		return nil
	})
	return deleted, err
}

// DeleteExpiredBefore removes tokens that expired before the given time.
func (r *RememberTokenRepository) DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	err := withRetry(ctx, "sweep expired remember tokens", func(ctx context.Context) error {
		result, err := r.pool.Exec(ctx, `DELETE FROM remember_tokens WHERE expires_at < $1`, now)
		if err != nil {
			return oops.Code("TOKEN_SWEEP_FAILED").
				With("operation", "delete expired remember tokens").
				Wrap(err)
		}
		deleted = result.RowsAffected()
		return nil
	})
	return deleted, err
}

// scanRememberToken scans a remember token row.
func scanRememberToken(row rowScanner) (*auth.RememberToken, error) {
	var token auth.RememberToken
	var idStr, userIDStr string

	if err := row.Scan(
		&idStr,
		&userIDStr,
		&token.TokenHash,
		&token.IssuedAt,
		&token.ExpiresAt,
	); err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("TOKEN_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("TOKEN_CORRUPT_USER_ID").With("user_id", userIDStr).Wrap(err)
	}
	token.ID = id
	token.UserID = userID
	return &token, nil
}
