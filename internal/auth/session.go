// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultIdleTimeout is the session idle timeout used when no configuration
// value is supplied.
const DefaultIdleTimeout = 30 * time.Minute

// Session is a server-side session record. The raw session identifier sent
// to the client is never stored; TokenHash is its SHA-256 hash.
type Session struct {
	ID          ulid.ULID
	UserID      ulid.ULID
	TokenHash   string
	Fingerprint string
	CSRFToken   string
	CreatedAt   time.Time
	LastSeenAt  time.Time
}

// NewSession creates a validated Session instance.
// Fingerprint is derived from request metadata by the transport layer and
// may be empty when the client context is unknown.
func NewSession(userID ulid.ULID, tokenHash, fingerprint, csrfToken string) (*Session, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_USER").Errorf("user ID cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("SESSION_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if csrfToken == "" {
		return nil, oops.Code("SESSION_INVALID_CSRF").Errorf("CSRF token cannot be empty")
	}

	now := time.Now()
	return &Session{
		ID:          ulid.Make(),
		UserID:      userID,
		TokenHash:   tokenHash,
		Fingerprint: fingerprint,
		CSRFToken:   csrfToken,
		CreatedAt:   now,
		LastSeenAt:  now,
	}, nil
}

// IsIdleExpiredAt returns true if the session would be idle-expired at the
// given time for the given timeout. A session is valid only while
// now - lastSeenAt < idleTimeout.
func (s *Session) IsIdleExpiredAt(t time.Time, idleTimeout time.Duration) bool {
	return t.Sub(s.LastSeenAt) >= idleTimeout
}

// SessionRepository manages session persistence. Records are exclusively
// owned by the SessionManager; no other component mutates them.
type SessionRepository interface {
	// Create stores a new session. Returns ErrDuplicate if a record with the
	// same token hash already exists.
	Create(ctx context.Context, session *Session) error

	// GetByTokenHash retrieves a session by its token hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*Session, error)

	// GetByUser retrieves all sessions for a user.
	GetByUser(ctx context.Context, userID ulid.ULID) ([]*Session, error)

	// UpdateLastSeen updates the LastSeenAt timestamp for a session.
	// Last-writer-wins is acceptable; the value only advances.
	UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error

	// DeleteByTokenHash removes a session by token hash. Idempotent: deleting
	// an absent session is not an error.
	DeleteByTokenHash(ctx context.Context, tokenHash string) error

	// DeleteByUser removes all sessions for a user and returns the count.
	DeleteByUser(ctx context.Context, userID ulid.ULID) (int64, error)

	// DeleteIdleBefore removes sessions last seen before the cutoff and
	// returns the count of deleted records.
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
