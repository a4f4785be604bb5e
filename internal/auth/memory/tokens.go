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

// RememberTokenRepository implements auth.RememberTokenRepository in memory,
// keyed by token hash.
type RememberTokenRepository struct {
	mu     sync.Mutex
	byHash map[string]*auth.RememberToken
}

// NewRememberTokenRepository creates an empty in-memory token repository.
func NewRememberTokenRepository() *RememberTokenRepository {
	return &RememberTokenRepository{byHash: make(map[string]*auth.RememberToken)}
}

// Create stores a new remember token.
func (r *RememberTokenRepository) Create(_ context.Context, token *auth.RememberToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byHash[token.TokenHash]; exists {
		return auth.ErrDuplicate
	}
	clone := *token
	r.byHash[token.TokenHash] = &clone
	return nil
}

// GetByTokenHash retrieves a token by its hash without consuming it.
func (r *RememberTokenRepository) GetByTokenHash(_ context.Context, tokenHash string) (*auth.RememberToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.byHash[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *token
	return &clone, nil
}

// Consume atomically removes and returns the token with the given hash.
// The delete-under-lock guarantees exactly one winner for concurrent calls.
func (r *RememberTokenRepository) Consume(_ context.Context, tokenHash string) (*auth.RememberToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.byHash[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	delete(r.byHash, tokenHash)

	clone := *token
	return &clone, nil
}

// DeleteByUser removes all tokens for a user.
func (r *RememberTokenRepository) DeleteByUser(_ context.Context, userID ulid.ULID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for hash, token := range r.byHash {
		if token.UserID == userID {
			delete(r.byHash, hash)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteExpiredBefore removes tokens that expired before the given time.
func (r *RememberTokenRepository) DeleteExpiredBefore(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for hash, token := range r.byHash {
		if token.ExpiresAt.Before(now) {
			delete(r.byHash, hash)
			deleted++
		}
	}
	return deleted, nil
}

// Len reports the number of stored tokens. Test helper.
func (r *RememberTokenRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byHash)
}
