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

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool Pool
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	return withRetry(ctx, "insert user", func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO users (id, username, password_hash, failed_attempts, locked_until, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			user.ID.String(),
			user.Username,
			user.PasswordHash,
			user.FailedAttempts,
			user.LockedUntil,
			user.CreatedAt,
			user.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return oops.Code("USER_DUPLICATE").
					With("username", user.Username).
					Wrap(auth.ErrDuplicate)
			}
			return oops.Code("USER_CREATE_FAILED").
				With("operation", "insert user").
				Wrap(err)
		}
		return nil
	})
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	var user *auth.User
	err := withRetry(ctx, "get user by id", func(ctx context.Context) error {
		row := r.pool.QueryRow(ctx, `
			SELECT id, username, password_hash, failed_attempts, locked_until, created_at, updated_at
			FROM users
			WHERE id = $1
		`, id.String())

		var scanErr error
		user, scanErr = scanUser(row)
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return oops.Code("USER_NOT_FOUND").
				With("id", id.String()).
				Wrap(auth.ErrNotFound)
		}
		if scanErr != nil {
			return oops.Code("USER_GET_BY_ID_FAILED").
				With("operation", "get user by id").
				Wrap(scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*auth.User, error) {
	var user *auth.User
	err := withRetry(ctx, "get user by username", func(ctx context.Context) error {
		row := r.pool.QueryRow(ctx, `
			SELECT id, username, password_hash, failed_attempts, locked_until, created_at, updated_at
			FROM users
			WHERE LOWER(username) = LOWER($1)
		`, username)

		var scanErr error
		user, scanErr = scanUser(row)
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		if scanErr != nil {
			return oops.Code("USER_GET_BY_USERNAME_FAILED").
				With("operation", "get user by username").
				Wrap(scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Update updates an existing user.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	return withRetry(ctx, "update user", func(ctx context.Context) error {
		result, err := r.pool.Exec(ctx, `
			UPDATE users
			SET username = $2, password_hash = $3, failed_attempts = $4, locked_until = $5, updated_at = $6
			WHERE id = $1
		`,
			user.ID.String(),
			user.Username,
			user.PasswordHash,
			user.FailedAttempts,
			user.LockedUntil,
			user.UpdatedAt,
		)
		if err != nil {
			return oops.Code("USER_UPDATE_FAILED").
				With("operation", "update user").
				With("id", user.ID.String()).
				Wrap(err)
		}
		if result.RowsAffected() == 0 {
			return oops.Code("USER_NOT_FOUND").
				With("id", user.ID.String()).
				Wrap(auth.ErrNotFound)
		}
		return nil
	})
}

// UpdatePassword updates only the password hash for a user.
func (r *UserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return withRetry(ctx, "update password", func(ctx context.Context) error {
		result, err := r.pool.Exec(ctx, `
			UPDATE users SET password_hash = $2, updated_at = NOW()
			WHERE id = $1
		`, id.String(), passwordHash)
		if err != nil {
			return oops.Code("USER_UPDATE_PASSWORD_FAILED").
				With("operation", "update password hash").
				With("id", id.String()).
				Wrap(err)
		}
		if result.RowsAffected() == 0 {
			return oops.Code("USER_NOT_FOUND").
				With("id", id.String()).
				Wrap(auth.ErrNotFound)
		}
		return nil
	})
}

// Delete removes a user.
func (r *UserRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return withRetry(ctx, "delete user", func(ctx context.Context) error {
		result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id.String())
		if err != nil {
			return oops.Code("USER_DELETE_FAILED").
				With("operation", "delete user").
				With("id", id.String()).
				Wrap(err)
		}
		if result.RowsAffected() == 0 {
			return oops.Code("USER_NOT_FOUND").
				With("id", id.String()).
				Wrap(auth.ErrNotFound)
		}
		return nil
	})
}

// scanUser scans a user row.
func scanUser(row rowScanner) (*auth.User, error) {
	var user auth.User
	var idStr string
	var lockedUntil *time.Time

	if err := row.Scan(
		&idStr,
		&user.Username,
		&user.PasswordHash,
		&user.FailedAttempts,
		&lockedUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_CORRUPT_ID").
			With("id", idStr).
			Wrap(err)
	}
	user.ID = id
	user.LockedUntil = lockedUntil
	return &user, nil
}
