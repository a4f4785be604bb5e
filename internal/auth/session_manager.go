// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// createAttempts bounds retries when a generated session identifier collides
// with an existing record. Collision probability is negligible at 256 bits
// of entropy but the check is still required.
const createAttempts = 3

// SessionManager owns the session lifecycle: create, validate, rotate,
// destroy. It enforces the idle timeout and the fingerprint hijack defense.
type SessionManager struct {
	sessions    SessionRepository
	idleTimeout time.Duration
	logger      *slog.Logger
}

// NewSessionManager creates a SessionManager with a no-op logger.
// idleTimeout <= 0 falls back to DefaultIdleTimeout.
func NewSessionManager(sessions SessionRepository, idleTimeout time.Duration) (*SessionManager, error) {
	return NewSessionManagerWithLogger(sessions, idleTimeout, slog.New(slog.DiscardHandler))
}

// NewSessionManagerWithLogger creates a SessionManager with the provided logger.
func NewSessionManagerWithLogger(sessions SessionRepository, idleTimeout time.Duration, logger *slog.Logger) (*SessionManager, error) {
	if sessions == nil {
		return nil, oops.Errorf("sessions repository is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &SessionManager{
		sessions:    sessions,
		idleTimeout: idleTimeout,
		logger:      logger,
	}, nil
}

// IdleTimeout returns the configured idle timeout.
func (m *SessionManager) IdleTimeout() time.Duration {
	return m.idleTimeout
}

// Create generates a new session for the user and returns the stored record
// together with the raw session identifier. The raw identifier is the only
// copy; callers transmit it to the client as an HttpOnly, Secure,
// SameSite=Strict cookie and must not retain it.
func (m *SessionManager) Create(ctx context.Context, userID ulid.ULID, fingerprint string) (*Session, string, error) {
	for attempt := 0; attempt < createAttempts; attempt++ {
		rawID, tokenHash, err := GenerateToken()
		if err != nil {
			return nil, "", oops.Code("SESSION_CREATE_FAILED").
				With("operation", "generate session token").
				Wrap(err)
		}

		csrfToken, _, err := GenerateToken()
		if err != nil {
			return nil, "", oops.Code("SESSION_CREATE_FAILED").
				With("operation", "generate csrf token").
				Wrap(err)
		}

		session, err := NewSession(userID, tokenHash, fingerprint, csrfToken)
		if err != nil {
			return nil, "", oops.Code("SESSION_CREATE_FAILED").
				With("operation", "construct session").
				Wrap(err)
		}

		err = m.sessions.Create(ctx, session)
		if err == nil {
			return session, rawID, nil
		}
		if errors.Is(err, ErrDuplicate) {
			m.logger.Warn("session identifier collision, regenerating",
				"attempt", attempt+1)
			continue
		}
		return nil, "", oops.Code("SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}
	return nil, "", oops.Code("SESSION_CREATE_FAILED").
		Errorf("session identifier collided %d times", createAttempts)
}

// Validate checks a raw session identifier against the store and the request
// fingerprint. On success it refreshes LastSeenAt and returns the session.
//
// An absent or idle-expired record fails with code SESSION_EXPIRED and the
// record is deleted. A fingerprint mismatch is treated as a possible hijack:
// the session is destroyed, not merely rejected, and the call fails with
// code SESSION_INVALID.
func (m *SessionManager) Validate(ctx context.Context, rawID, fingerprint string) (*Session, error) {
	if rawID == "" {
		return nil, oops.Code("SESSION_EXPIRED").Errorf("no session identifier presented")
	}

	tokenHash := HashToken(rawID)

	session, err := m.sessions.GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_EXPIRED").Errorf("session not found")
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	now := time.Now()
	if session.IsIdleExpiredAt(now, m.idleTimeout) {
		if delErr := m.sessions.DeleteByTokenHash(ctx, tokenHash); delErr != nil {
			m.logger.Warn("failed to delete idle-expired session",
				"session_id", session.ID.String(), "error", delErr)
		}
		return nil, oops.Code("SESSION_EXPIRED").
			With("idle_for", now.Sub(session.LastSeenAt).String()).
			Errorf("session idle timeout exceeded")
	}

	if subtle.ConstantTimeCompare([]byte(session.Fingerprint), []byte(fingerprint)) != 1 {
		// Defensive destroy: a mismatched fingerprint may be a stolen
		// session identifier in use from another client.
		if delErr := m.sessions.DeleteByTokenHash(ctx, tokenHash); delErr != nil {
			m.logger.Warn("failed to destroy session on fingerprint mismatch",
				"session_id", session.ID.String(), "error", delErr)
		}
		return nil, oops.Code("SESSION_INVALID").
			With("session_id", session.ID.String()).
			Errorf("client fingerprint mismatch")
	}

	// Touch. Last-writer-wins is fine: the value only advances.
	if touchErr := m.sessions.UpdateLastSeen(ctx, session.ID, now); touchErr != nil && !errors.Is(touchErr, ErrNotFound) {
		m.logger.Warn("failed to touch session",
			"session_id", session.ID.String(), "error", touchErr)
	}
	session.LastSeenAt = now

	return session, nil
}

// Destroy removes a session by its raw identifier. Idempotent: destroying an
// absent session is not an error.
func (m *SessionManager) Destroy(ctx context.Context, rawID string) error {
	if rawID == "" {
		return nil
	}
	if err := m.sessions.DeleteByTokenHash(ctx, HashToken(rawID)); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("SESSION_DESTROY_FAILED").
			With("operation", "delete session").
			Wrap(err)
	}
	return nil
}

// Rotate invalidates the old session identifier and issues a new one for the
// same user. It must be called immediately after any privilege change: an
// identifier that existed before authentication must never remain valid
// after it.
func (m *SessionManager) Rotate(ctx context.Context, rawID, fingerprint string) (*Session, string, error) {
	old, err := m.Validate(ctx, rawID, fingerprint)
	if err != nil {
		return nil, "", err
	}

	session, newRawID, err := m.Create(ctx, old.UserID, fingerprint)
	if err != nil {
		return nil, "", err
	}

	if err := m.Destroy(ctx, rawID); err != nil {
		// The old identifier must not outlive the rotation. Tear down the
		// replacement and fail closed.
		if cleanupErr := m.Destroy(ctx, newRawID); cleanupErr != nil {
			m.logger.Warn("failed to clean up replacement session after rotate failure",
				"session_id", session.ID.String(), "error", cleanupErr)
		}
		return nil, "", oops.Code("SESSION_ROTATE_FAILED").
			With("operation", "destroy pre-rotation session").
			Wrap(err)
	}

	return session, newRawID, nil
}

// ValidateCSRF checks a presented anti-CSRF token against the session's
// token using a constant-time comparison.
func (m *SessionManager) ValidateCSRF(session *Session, presented string) error {
	if session == nil {
		return oops.Code("CSRF_INVALID").Errorf("no session")
	}
	if presented == "" {
		return oops.Code("CSRF_INVALID").Errorf("missing CSRF token")
	}
	if subtle.ConstantTimeCompare([]byte(session.CSRFToken), []byte(presented)) != 1 {
		return oops.Code("CSRF_INVALID").
			With("session_id", session.ID.String()).
			Errorf("CSRF token mismatch")
	}
	return nil
}
