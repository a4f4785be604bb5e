// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth implements the Gatehouse authentication core.
//
// # Domain Types
//
// Domain types (User, Session, RememberToken) should be created using their
// respective constructors:
//   - NewUser - creates a User with a validated username and password hash
//   - NewSession - creates a Session with a validated owner and token hash
//   - NewRememberToken - creates a RememberToken with a validated owner and expiry
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from these
// constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - Authenticator - credential verification with lockout and timing defenses
//   - SessionManager - session lifecycle: create, validate, rotate, destroy
//   - RememberTokenManager - single-use long-lived token issue/resume/revoke
//   - Service - the facade HTTP handlers call: Login, Resume, Logout
//
// Raw session identifiers and remember tokens are never persisted; only
// their SHA-256 hashes reach a repository. Specific failure kinds (expired
// session, consumed token, bad fingerprint) are logged for audit but
// collapsed to a generic unauthenticated error before leaving the facade.
package auth
