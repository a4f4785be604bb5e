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

// SessionRepository implements auth.SessionRepository using PostgreSQL.
type SessionRepository struct {
	pool Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	return withRetry(ctx, "insert session", func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO sessions (id, user_id, token_hash, fingerprint, csrf_token, created_at, last_seen_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			session.ID.String(),
			session.UserID.String(),
			session.TokenHash,
			session.Fingerprint,
			session.CSRFToken,
			session.CreatedAt,
			session.LastSeenAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return oops.Code("SESSION_DUPLICATE").Wrap(auth.ErrDuplicate)
			}
			return oops.Code("SESSION_CREATE_FAILED").
				With("operation", "insert session").
				With("user_id", session.UserID.String()).
				Wrap(err)
		}
		return nil
	})
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	var session *auth.Session
	err := withRetry(ctx, "get session by token hash", func(ctx context.Context) error {
		row := r.pool.QueryRow(ctx, `
			SELECT id, user_id, token_hash, fingerprint, csrf_token, created_at, last_seen_at
			FROM sessions
			WHERE token_hash = $1
		`, tokenHash)

		var scanErr error
		session, scanErr = scanSession(row)
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
		}
		if scanErr != nil {
			return oops.Code("SESSION_GET_BY_TOKEN_FAILED").
				With("operation", "get session by token hash").
				Wrap(scanErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetByUser retrieves all sessions for a user.
func (r *SessionRepository) GetByUser(ctx context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	var sessions []*auth.Session
	err := withRetry(ctx, "get sessions by user", func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `
			SELECT id, user_id, token_hash, fingerprint, csrf_token, created_at, last_seen_at
			FROM sessions
			WHERE user_id = $1
			ORDER BY created_at DESC
		`, userID.String())
		if err != nil {
			return oops.Code("SESSION_GET_BY_USER_FAILED").
				With("operation", "get sessions by user").
				With("user_id", userID.String()).
				Wrap(err)
		}
		defer rows.Close()

		sessions = sessions[:0]
		for rows.Next() {
			session, scanErr := scanSession(rows)
			if scanErr != nil {
				return oops.Code("SESSION_SCAN_FAILED").
					With("operation", "scan session row").
					Wrap(scanErr)
			}
			sessions = append(sessions, session)
		}
		if err := rows.Err(); err != nil {
			return oops.Code("SESSION_ROWS_ERROR").
				With("operation", "iterate session rows").
				Wrap(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpdateLastSeen updates the LastSeenAt timestamp for a session.
func (r *SessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	return withRetry(ctx, "touch session", func(ctx context.Context) error {
		result, err := r.pool.Exec(ctx, `
			UPDATE sessions SET last_seen_at = $2
			WHERE id = $1
		`, id.String(), lastSeen)
		if err != nil {
			return oops.Code("SESSION_TOUCH_FAILED").
				With("operation", "update last_seen_at").
				With("id", id.String()).
				Wrap(err)
		}
		if result.RowsAffected() == 0 {
			return oops.Code("SESSION_NOT_FOUND").
				With("id", id.String()).
				Wrap(auth.ErrNotFound)
		}
		return nil
	})
}

// DeleteByTokenHash removes a session by token hash. Idempotent: deleting an
// absent session succeeds.
func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	return withRetry(ctx, "delete session", func(ctx context.Context) error {
		if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
			return oops.Code("SESSION_DELETE_FAILED").
				With("operation", "delete session by token hash").
				Wrap(err)
		}
		return nil
	})
}

// DeleteByUser removes all sessions for a user.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error) {
	var deleted int64
	err := withRetry(ctx, "delete sessions by user", func(ctx context.Context) error {
		result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID.String())
		if err != nil {
			return oops.Code("SESSION_DELETE_BY_USER_FAILED").
				With("operation", "delete sessions by user").
				With("user_id", userID.String()).
				Wrap(err)
		}
		deleted = result.RowsAffected()
		return nil
	})
	return deleted, err
}

// DeleteIdleBefore removes sessions last seen before the cutoff.
func (r *SessionRepository) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := withRetry(ctx, "sweep idle sessions", func(ctx context.Context) error {
		result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE last_seen_at < $1`, cutoff)
		if err != nil {
			return oops.Code("SESSION_SWEEP_FAILED").
				With("operation", "delete idle sessions").
				Wrap(err)
		}
		deleted = result.RowsAffected()
		return nil
	})
	return deleted, err
}

// scanSession scans a session row.
func scanSession(row rowScanner) (*auth.Session, error) {
	var session auth.Session
	var idStr, userIDStr string

	if err := row.Scan(
		&idStr,
		&userIDStr,
		&session.TokenHash,
		&session.Fingerprint,
		&session.CSRFToken,
		&session.CreatedAt,
		&session.LastSeenAt,
	); err != nil {
		return nil, err
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_CORRUPT_ID").With("id", idStr).Wrap(err)
	}
	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_CORRUPT_USER_ID").With("user_id", userIDStr).Wrap(err)
	}
	session.ID = id
	session.UserID = userID
	return &session, nil
}
