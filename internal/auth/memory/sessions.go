// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// SessionRepository implements auth.SessionRepository in memory, keyed by
// token hash.
type SessionRepository struct {
	mu     sync.Mutex
	byHash map[string]*auth.Session
}

// NewSessionRepository creates an empty in-memory session repository.
func NewSessionRepository() *SessionRepository {
	return &SessionRepository{byHash: make(map[string]*auth.Session)}
}

// Create stores a new session.
func (r *SessionRepository) Create(_ context.Context, session *auth.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byHash[session.TokenHash]; exists {
		return auth.ErrDuplicate
	}
	clone := *session
	r.byHash[session.TokenHash] = &clone
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byHash[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *session
	return &clone, nil
}

// GetByUser retrieves all sessions for a user.
func (r *SessionRepository) GetByUser(_ context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sessions []*auth.Session
	for _, session := range r.byHash {
		if session.UserID == userID {
			clone := *session
			sessions = append(sessions, &clone)
		}
	}
	return sessions, nil
}

// UpdateLastSeen updates the LastSeenAt timestamp for a session.
func (r *SessionRepository) UpdateLastSeen(_ context.Context, id ulid.ULID, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, session := range r.byHash {
		if session.ID == id {
			session.LastSeenAt = lastSeen
			return nil
		}
	}
	return auth.ErrNotFound
}

// DeleteByTokenHash removes a session by token hash. Idempotent.
func (r *SessionRepository) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.byHash, tokenHash)
	return nil
}

// DeleteByUser removes all sessions for a user.
func (r *SessionRepository) DeleteByUser(_ context.Context, userID ulid.ULID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for hash, session := range r.byHash {
		if session.UserID == userID {
			delete(r.byHash, hash)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteIdleBefore removes sessions last seen before the cutoff.
func (r *SessionRepository) DeleteIdleBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for hash, session := range r.byHash {
		if session.LastSeenAt.Before(cutoff) {
			delete(r.byHash, hash)
			deleted++
		}
	}
	return deleted, nil
}

// Len reports the number of stored sessions. Test helper.
func (r *SessionRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byHash)
}

// Clear drops all stored sessions. Test helper.
func (r *SessionRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byHash = make(map[string]*auth.Session)
}
