// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"valid simple", "alice", false},
		{"valid with numbers", "alice42", false},
		{"valid with underscore", "alice_w", false},
		{"valid minimum length", "abc", false},
		{"valid maximum length", strings.Repeat("a", 30), false},
		{"empty", "", true},
		{"too short", "ab", true},
		{"too long", strings.Repeat("a", 31), true},
		{"starts with number", "1alice", true},
		{"starts with underscore", "_alice", true},
		{"contains space", "alice w", true},
		{"contains hyphen", "alice-w", true},
		{"contains unicode", "alicé", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := auth.ValidateUsername(tt.username)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "AUTH_INVALID_USERNAME")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewUser(t *testing.T) {
	t.Run("valid user", func(t *testing.T) {
		user, err := auth.NewUser("alice", "$argon2id$v=19$m=65536,t=1,p=4$salt$hash")
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
		assert.NotZero(t, user.ID)
		assert.Zero(t, user.FailedAttempts)
		assert.Nil(t, user.LockedUntil)
	})

	t.Run("invalid username", func(t *testing.T) {
		_, err := auth.NewUser("x", "hash")
		require.Error(t, err)
	})

	t.Run("empty hash", func(t *testing.T) {
		_, err := auth.NewUser("alice", "")
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "AUTH_INVALID_HASH")
	})
}

func TestUser_FailureBookkeeping(t *testing.T) {
	user, err := auth.NewUser("alice", "hash")
	require.NoError(t, err)

	for range auth.LockoutThreshold - 1 {
		user.RecordFailure()
	}
	assert.Equal(t, auth.LockoutThreshold-1, user.FailedAttempts)
	assert.False(t, user.IsLocked(), "below threshold should not lock")

	user.RecordFailure()
	assert.True(t, user.IsLocked(), "reaching threshold should lock")
	require.NotNil(t, user.LockedUntil)
	assert.WithinDuration(t, time.Now().Add(auth.LockoutDuration), *user.LockedUntil, time.Minute)

	user.RecordSuccess()
	assert.Zero(t, user.FailedAttempts)
	assert.Nil(t, user.LockedUntil)
	assert.False(t, user.IsLocked())
}
