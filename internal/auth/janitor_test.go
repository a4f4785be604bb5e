// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/memory"
)

func TestJanitor_RunOnce(t *testing.T) {
	ctx := context.Background()
	sessions := memory.NewSessionRepository()
	tokens := memory.NewRememberTokenRepository()

	idleTimeout := time.Minute
	sm, err := auth.NewSessionManager(sessions, idleTimeout)
	require.NoError(t, err)
	rm, err := auth.NewRememberTokenManager(tokens, time.Hour)
	require.NoError(t, err)

	userID := ulid.Make()

	// One live session, one idle-expired.
	_, _, err = sm.Create(ctx, userID, "fp")
	require.NoError(t, err)
	stale, _, err := sm.Create(ctx, userID, "fp")
	require.NoError(t, err)
	require.NoError(t, sessions.UpdateLastSeen(ctx, stale.ID, time.Now().Add(-2*idleTimeout)))

	// One live remember token, one expired.
	_, err = rm.Issue(ctx, userID)
	require.NoError(t, err)
	rawExpired, err := rm.Issue(ctx, userID)
	require.NoError(t, err)
	expired, err := tokens.Consume(ctx, auth.HashToken(rawExpired))
	require.NoError(t, err)
	expired.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, tokens.Create(ctx, expired))

	janitor := auth.NewJanitor(sessions, tokens, idleTimeout, time.Minute)
	require.NoError(t, janitor.RunOnce(ctx))

	assert.Equal(t, 1, sessions.Len(), "only the live session survives")
	assert.Equal(t, 1, tokens.Len(), "only the live token survives")
}

func TestJanitor_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	sessions := memory.NewSessionRepository()
	tokens := memory.NewRememberTokenRepository()

	janitor := auth.NewJanitor(sessions, tokens, time.Minute, 10*time.Millisecond)
	janitor.Start(context.Background())

	// Let at least one tick fire.
	time.Sleep(30 * time.Millisecond)
	janitor.Stop()
}

func TestJanitor_DefaultDurations(t *testing.T) {
	janitor := auth.NewJanitor(memory.NewSessionRepository(), memory.NewRememberTokenRepository(), 0, 0)
	assert.NotNil(t, janitor)
	// RunOnce with empty stores is a no-op either way.
	assert.NoError(t, janitor.RunOnce(context.Background()))
}
