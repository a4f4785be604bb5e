// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/memory"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/store"
)

// repos bundles the repository set behind the service, with a close func for
// whatever backs them.
type repos struct {
	users    auth.UserRepository
	sessions auth.SessionRepository
	tokens   auth.RememberTokenRepository
	close    func()
}

// openRepos builds the repository set from configuration. An empty database
// URL selects the in-memory store, which loses all state on restart.
func openRepos(ctx context.Context, cfg *config.Config) (*repos, error) {
	if cfg.Database.URL == "" {
		slog.Warn("no database configured, using in-memory store; all state is lost on restart")
		return &repos{
			users:    memory.NewUserRepository(),
			sessions: memory.NewSessionRepository(),
			tokens:   memory.NewRememberTokenRepository(),
			close:    func() {},
		}, nil
	}

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	return &repos{
		users:    postgres.NewUserRepository(pool),
		sessions: postgres.NewSessionRepository(pool),
		tokens:   postgres.NewRememberTokenRepository(pool),
		close:    pool.Close,
	}, nil
}

// buildService wires the authentication facade from a repository set.
func buildService(cfg *config.Config, r *repos, logger *slog.Logger) (*auth.Service, error) {
	hasher := auth.NewArgon2idHasher()

	authenticator, err := auth.NewAuthenticatorWithLogger(r.users, hasher, logger)
	if err != nil {
		return nil, err
	}
	sessions, err := auth.NewSessionManagerWithLogger(r.sessions, cfg.Session.IdleTimeout, logger)
	if err != nil {
		return nil, err
	}
	remember, err := auth.NewRememberTokenManagerWithLogger(r.tokens, cfg.Remember.TTL, logger)
	if err != nil {
		return nil, err
	}
	return auth.NewServiceWithLogger(authenticator, sessions, remember, logger)
}
