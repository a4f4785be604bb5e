// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package postgres_test

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/store"
)

// setupPostgresContainer starts a PostgreSQL container, runs the migrations,
// and returns a connected pool.
func setupPostgresContainer() (*pgxpool.Pool, func(), error) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("gatehouse_test"),
		tcpostgres.WithUsername("gatehouse"),
		tcpostgres.WithPassword("gatehouse"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, nil, err
	}
	if err := migrator.Up(); err != nil {
		return nil, nil, err
	}
	if err := migrator.Close(); err != nil {
		return nil, nil, err
	}

	pool, err := store.Connect(ctx, connStr)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}
	return pool, cleanup, nil
}

var _ = Describe("Postgres repositories", Ordered, func() {
	var (
		pool    *pgxpool.Pool
		cleanup func()
		users   *postgres.UserRepository
	)

	BeforeAll(func() {
		var err error
		pool, cleanup, err = setupPostgresContainer()
		Expect(err).NotTo(HaveOccurred())
		users = postgres.NewUserRepository(pool)
	})

	AfterAll(func() {
		cleanup()
	})

	newUser := func(username string) *auth.User {
		user, err := auth.NewUser(username, "$argon2id$v=19$m=65536,t=1,p=4$salt$hash")
		Expect(err).NotTo(HaveOccurred())
		return user
	}

	createUser := func(username string) *auth.User {
		user := newUser(username)
		Expect(users.Create(context.Background(), user)).To(Succeed())
		return user
	}

	Describe("UserRepository", func() {
		It("round-trips a user", func() {
			ctx := context.Background()
			user := createUser("roundtrip")

			got, err := users.GetByUsername(ctx, "roundtrip")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(user.ID))
			Expect(got.PasswordHash).To(Equal(user.PasswordHash))
		})

		It("looks up usernames case-insensitively", func() {
			ctx := context.Background()
			user := createUser("CaseFold")

			got, err := users.GetByUsername(ctx, "casefold")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(user.ID))
		})

		It("rejects duplicate usernames regardless of case", func() {
			ctx := context.Background()
			createUser("taken")

			err := users.Create(ctx, newUser("TAKEN"))
			Expect(err).To(MatchError(auth.ErrDuplicate))
		})

		It("persists lockout bookkeeping", func() {
			ctx := context.Background()
			user := createUser("lockme")

			until := time.Now().Add(15 * time.Minute).UTC()
			user.FailedAttempts = 5
			user.LockedUntil = &until
			user.UpdatedAt = time.Now().UTC()
			Expect(users.Update(ctx, user)).To(Succeed())

			got, err := users.GetByID(ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.FailedAttempts).To(Equal(5))
			Expect(got.LockedUntil).NotTo(BeNil())
			Expect(got.LockedUntil.Unix()).To(Equal(until.Unix()))
		})
	})

	Describe("SessionRepository", func() {
		var sessions *postgres.SessionRepository
		var owner *auth.User

		BeforeAll(func() {
			sessions = postgres.NewSessionRepository(pool)
			owner = createUser("session-owner")
		})

		newSession := func() *auth.Session {
			_, hash, err := auth.GenerateToken()
			Expect(err).NotTo(HaveOccurred())
			session, err := auth.NewSession(owner.ID, hash, "fp", "csrf")
			Expect(err).NotTo(HaveOccurred())
			return session
		}

		It("round-trips a session", func() {
			ctx := context.Background()
			session := newSession()
			Expect(sessions.Create(ctx, session)).To(Succeed())

			got, err := sessions.GetByTokenHash(ctx, session.TokenHash)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(session.ID))
			Expect(got.UserID).To(Equal(owner.ID))
			Expect(got.CSRFToken).To(Equal("csrf"))
		})

		It("deletes sessions when their owner is deleted", func() {
			ctx := context.Background()
			victim := createUser("cascade-owner")
			_, hash, err := auth.GenerateToken()
			Expect(err).NotTo(HaveOccurred())
			session, err := auth.NewSession(victim.ID, hash, "fp", "csrf")
			Expect(err).NotTo(HaveOccurred())
			Expect(sessions.Create(ctx, session)).To(Succeed())

			Expect(users.Delete(ctx, victim.ID)).To(Succeed())

			_, err = sessions.GetByTokenHash(ctx, session.TokenHash)
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("sweeps idle sessions", func() {
			ctx := context.Background()
			stale := newSession()
			Expect(sessions.Create(ctx, stale)).To(Succeed())
			Expect(sessions.UpdateLastSeen(ctx, stale.ID, time.Now().Add(-2*time.Hour))).To(Succeed())

			fresh := newSession()
			Expect(sessions.Create(ctx, fresh)).To(Succeed())

			deleted, err := sessions.DeleteIdleBefore(ctx, time.Now().Add(-time.Hour))
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeEquivalentTo(1))

			_, err = sessions.GetByTokenHash(ctx, stale.TokenHash)
			Expect(err).To(MatchError(auth.ErrNotFound))
			_, err = sessions.GetByTokenHash(ctx, fresh.TokenHash)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("RememberTokenRepository", func() {
		var tokens *postgres.RememberTokenRepository
		var owner *auth.User

		BeforeAll(func() {
			tokens = postgres.NewRememberTokenRepository(pool)
			owner = createUser("token-owner")
		})

		newToken := func(expiresAt time.Time) *auth.RememberToken {
			_, hash, err := auth.GenerateToken()
			Expect(err).NotTo(HaveOccurred())
			token, err := auth.NewRememberToken(owner.ID, hash, expiresAt)
			Expect(err).NotTo(HaveOccurred())
			return token
		}

		It("consumes a token exactly once", func() {
			ctx := context.Background()
			token := newToken(time.Now().Add(time.Hour))
			Expect(tokens.Create(ctx, token)).To(Succeed())

			got, err := tokens.Consume(ctx, token.TokenHash)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.UserID).To(Equal(owner.ID))

			_, err = tokens.Consume(ctx, token.TokenHash)
			Expect(err).To(MatchError(auth.ErrNotFound))
		})

		It("only one of many concurrent consumers wins", func() {
			ctx := context.Background()
			token := newToken(time.Now().Add(time.Hour))
			Expect(tokens.Create(ctx, token)).To(Succeed())

			const attempts = 8
			results := make(chan error, attempts)
			for range attempts {
				go func() {
					_, err := tokens.Consume(ctx, token.TokenHash)
					results <- err
				}()
			}

			var wins int
			for range attempts {
				if err := <-results; err == nil {
					wins++
				}
			}
			Expect(wins).To(Equal(1))
		})

		It("sweeps expired tokens", func() {
			ctx := context.Background()
			expired := newToken(time.Now().Add(-time.Minute))
			Expect(tokens.Create(ctx, expired)).To(Succeed())
			live := newToken(time.Now().Add(time.Hour))
			Expect(tokens.Create(ctx, live)).To(Succeed())

			deleted, err := tokens.DeleteExpiredBefore(ctx, time.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted).To(BeEquivalentTo(1))

			_, err = tokens.GetByTokenHash(ctx, live.TokenHash)
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
