// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package memory provides mutex-guarded in-memory repositories for the auth
// domain. They back unit tests and the --dev serve mode; every method hands
// out copies so no record is ever shared by mutable reference between
// request goroutines.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// UserRepository implements auth.UserRepository in memory.
type UserRepository struct {
	mu    sync.Mutex
	byID  map[ulid.ULID]*auth.User
	names map[string]ulid.ULID // lowercased username -> id
}

// NewUserRepository creates an empty in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:  make(map[ulid.ULID]*auth.User),
		names: make(map[string]ulid.ULID),
	}
}

// Create stores a new user.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(user.Username)
	if _, exists := r.names[key]; exists {
		return auth.ErrDuplicate
	}
	if _, exists := r.byID[user.ID]; exists {
		return auth.ErrDuplicate
	}

	clone := *user
	r.byID[user.ID] = &clone
	r.names[key] = user.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

// GetByUsername retrieves a user by username (case-insensitive).
func (r *UserRepository) GetByUsername(_ context.Context, username string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.names[strings.ToLower(username)]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *r.byID[id]
	return &clone, nil
}

// Update updates an existing user.
func (r *UserRepository) Update(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byID[user.ID]
	if !ok {
		return auth.ErrNotFound
	}
	delete(r.names, strings.ToLower(existing.Username))

	clone := *user
	r.byID[user.ID] = &clone
	r.names[strings.ToLower(user.Username)] = user.ID
	return nil
}

// UpdatePassword updates only the password hash for a user.
func (r *UserRepository) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

// Delete removes a user.
func (r *UserRepository) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(r.names, strings.ToLower(user.Username))
	delete(r.byID, id)
	return nil
}
