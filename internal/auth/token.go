// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
)

// TokenBytes is the entropy of every opaque client token (session
// identifiers, remember tokens, CSRF tokens): 32 bytes = 64 hex chars.
const TokenBytes = 32

// GenerateToken creates a secure random opaque token and its hash.
// Returns (plaintext_token, sha256_hash, error). The plaintext goes to the
// client exactly once; only the hash is ever stored.
func GenerateToken() (token, hash string, err error) {
	raw := make([]byte, TokenBytes)
	if _, err = rand.Read(raw); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", TokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(raw)
	return token, HashToken(token), nil
}

// HashToken computes the SHA-256 hash of an opaque token, hex-encoded.
// This is the only form a token takes at rest.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyToken checks if the plaintext token matches the stored hash using a
// constant-time comparison on the hash output.
// Returns (true, nil) on match, (false, nil) on mismatch, or (false, error)
// on invalid input.
func VerifyToken(token, hash string) (bool, error) {
	if token == "" {
		return false, oops.Code("TOKEN_EMPTY").Errorf("token cannot be empty")
	}
	if hash == "" {
		return false, oops.Code("TOKEN_HASH_EMPTY").Errorf("stored hash cannot be empty")
	}
	computed := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1, nil
}
