// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// Service is the authentication facade the transport layer calls. It
// orchestrates the Authenticator, SessionManager, and RememberTokenManager
// into login, resume, and logout.
//
// Failure collapse policy: specific failure kinds (expired session,
// fingerprint mismatch, consumed or expired remember token, store outages)
// are logged with their code for audit, then collapsed to the generic
// AUTH_UNAUTHENTICATED (or AUTH_INVALID_CREDENTIALS for Login) before being
// returned. Callers can not distinguish "no such session" from "expired
// session" from "wrong password". Store failures fail closed, never open.
type Service struct {
	authenticator *Authenticator
	sessions      *SessionManager
	remember      *RememberTokenManager
	logger        *slog.Logger
}

// NewService creates the authentication facade with a no-op logger.
func NewService(authenticator *Authenticator, sessions *SessionManager, remember *RememberTokenManager) (*Service, error) {
	return NewServiceWithLogger(authenticator, sessions, remember, slog.New(slog.DiscardHandler))
}

// NewServiceWithLogger creates the authentication facade with the provided logger.
func NewServiceWithLogger(authenticator *Authenticator, sessions *SessionManager, remember *RememberTokenManager, logger *slog.Logger) (*Service, error) {
	if authenticator == nil {
		return nil, oops.Errorf("authenticator is required")
	}
	if sessions == nil {
		return nil, oops.Errorf("session manager is required")
	}
	if remember == nil {
		return nil, oops.Errorf("remember token manager is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Service{
		authenticator: authenticator,
		sessions:      sessions,
		remember:      remember,
		logger:        logger,
	}, nil
}

// Sessions exposes the session manager for CSRF validation at the transport
// layer.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// Remember exposes the remember-token manager, e.g. for cookie TTLs.
func (s *Service) Remember() *RememberTokenManager {
	return s.remember
}

// LoginRequest carries the values an explicit login needs.
type LoginRequest struct {
	Username string
	Password string
	// Remember requests a long-lived remember token alongside the session.
	Remember bool
	// Fingerprint is derived from stable request metadata by the transport.
	Fingerprint string
	// PriorSessionID is the raw session identifier that accompanied the
	// request, if any. It is destroyed before the new session is created so
	// a pre-login identifier never remains valid after authentication.
	PriorSessionID string
}

// LoginResult carries the fresh client-side tokens. Each raw value appears
// here exactly once; the transport sets them as cookies and discards them.
type LoginResult struct {
	UserID        ulid.ULID
	SessionID     string
	CSRFToken     string
	RememberToken string // empty unless Remember was requested
}

// ResumeRequest carries the opaque tokens presented on a request.
type ResumeRequest struct {
	SessionID     string // raw session identifier, if presented
	RememberToken string // raw remember token, if presented
	Fingerprint   string
}

// Context is the request-scoped authenticated context. It carries no
// persistent state and is discarded when the request completes.
type Context struct {
	UserID    ulid.ULID
	SessionID string
	CSRFToken string
	// RememberToken is non-empty when the session was re-established from a
	// remember token: the consumed token was rotated and the transport must
	// replace the client's cookie with this value.
	RememberToken string
	// Resumed is true when the context came from the remember-token path
	// rather than an existing session.
	Resumed bool
}

// Login authenticates credentials and establishes a fresh session. On
// failure it reports AUTH_INVALID_CREDENTIALS without revealing whether the
// username existed; infrastructure failures fail closed as
// AUTH_UNAUTHENTICATED.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	userID, err := s.authenticator.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		switch errCode(err) {
		case "AUTH_INVALID_CREDENTIALS":
			RecordLogin(StatusInvalidCredentials)
			errutil.LogWarn(s.logger, "login rejected", err)
			return nil, invalidCredentials()
		case "AUTH_ACCOUNT_LOCKED":
			// Surfacing the lockout would confirm the account exists.
			RecordLogin(StatusLocked)
			errutil.LogWarn(s.logger, "login rejected: account locked", err)
			return nil, invalidCredentials()
		default:
			RecordLogin(StatusError)
			errutil.LogError(s.logger, "login failed", err)
			return nil, unauthenticated()
		}
	}

	// Session fixation defense: any identifier that existed before this
	// privilege change must be gone before the new session is issued.
	if req.PriorSessionID != "" {
		if err := s.sessions.Destroy(ctx, req.PriorSessionID); err != nil {
			RecordLogin(StatusError)
			errutil.LogError(s.logger, "login failed: could not destroy pre-login session", err)
			return nil, unauthenticated()
		}
	}

	session, rawID, err := s.sessions.Create(ctx, userID, req.Fingerprint)
	if err != nil {
		RecordLogin(StatusError)
		errutil.LogError(s.logger, "login failed: could not create session", err)
		return nil, unauthenticated()
	}

	result := &LoginResult{
		UserID:    userID,
		SessionID: rawID,
		CSRFToken: session.CSRFToken,
	}

	if req.Remember {
		raw, issueErr := s.remember.Issue(ctx, userID)
		if issueErr != nil {
			// The login itself succeeded; the client just doesn't get a
			// remember cookie this time.
			errutil.LogError(s.logger, "remember token issue failed", issueErr)
		} else {
			result.RememberToken = raw
		}
	}

	RecordLogin(StatusSuccess)
	s.logger.Info("login succeeded",
		"user_id", userID.String(), "session_id", session.ID.String(), "remember", req.Remember)
	return result, nil
}

// Resume re-establishes an authenticated context from the presented tokens:
// a valid session wins; otherwise a remember token silently re-authenticates
// (creating a new session and rotating the token). Every failure surfaces as
// AUTH_UNAUTHENTICATED.
func (s *Service) Resume(ctx context.Context, req ResumeRequest) (*Context, error) {
	if req.SessionID != "" {
		session, err := s.sessions.Validate(ctx, req.SessionID, req.Fingerprint)
		if err == nil {
			RecordSessionValidation(StatusSuccess)
			return &Context{
				UserID:    session.UserID,
				SessionID: req.SessionID,
				CSRFToken: session.CSRFToken,
			}, nil
		}

		switch errCode(err) {
		case "SESSION_EXPIRED":
			RecordSessionValidation(StatusExpired)
			errutil.LogWarn(s.logger, "session validation failed", err)
			// Fall through to the remember-token path: an idle-expired
			// session with a live remember cookie is the silent
			// re-authentication case.
		case "SESSION_INVALID":
			RecordSessionValidation(StatusFingerprintMismatch)
			errutil.LogWarn(s.logger, "session destroyed: possible hijack", err)
			return nil, unauthenticated()
		default:
			RecordSessionValidation(StatusError)
			errutil.LogError(s.logger, "session validation failed", err)
			return nil, unauthenticated()
		}
	}

	if req.RememberToken != "" {
		return s.resumeFromRemember(ctx, req)
	}

	return nil, unauthenticated()
}

func (s *Service) resumeFromRemember(ctx context.Context, req ResumeRequest) (*Context, error) {
	userID, replacement, err := s.remember.Resume(ctx, req.RememberToken)
	if err != nil {
		switch errCode(err) {
		case "TOKEN_INVALID":
			RecordRememberResume(StatusTokenInvalid)
			errutil.LogWarn(s.logger, "remember token rejected", err)
		case "TOKEN_EXPIRED":
			RecordRememberResume(StatusTokenExpired)
			errutil.LogWarn(s.logger, "remember token expired", err)
		default:
			RecordRememberResume(StatusError)
			errutil.LogError(s.logger, "remember token resume failed", err)
		}
		return nil, unauthenticated()
	}

	session, rawID, err := s.sessions.Create(ctx, userID, req.Fingerprint)
	if err != nil {
		RecordRememberResume(StatusError)
		errutil.LogError(s.logger, "resume failed: could not create session", err)
		return nil, unauthenticated()
	}

	RecordRememberResume(StatusSuccess)
	s.logger.Info("session resumed from remember token",
		"user_id", userID.String(), "session_id", session.ID.String())
	return &Context{
		UserID:        userID,
		SessionID:     rawID,
		CSRFToken:     session.CSRFToken,
		RememberToken: replacement,
		Resumed:       true,
	}, nil
}

// Logout destroys the session and, when a remember token accompanied the
// request, revokes every remember token for its owner. It is idempotent and
// always succeeds even if nothing was active; store failures are logged and
// the client is treated as logged out regardless.
func (s *Service) Logout(ctx context.Context, rawSessionID, rawRememberToken string) {
	if err := s.sessions.Destroy(ctx, rawSessionID); err != nil {
		errutil.LogError(s.logger, "logout: session destroy failed", err)
	}

	if rawRememberToken != "" {
		if err := s.remember.RevokeByToken(ctx, rawRememberToken); err != nil {
			errutil.LogError(s.logger, "logout: remember token revoke failed", err)
		}
	}
}

// invalidCredentials is the only failure Login reveals for credential-class
// problems.
func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid username or password")
}

// unauthenticated is the generic external failure every other problem
// collapses into.
func unauthenticated() error {
	return oops.Code("AUTH_UNAUTHENTICATED").Errorf("authentication required")
}

// errCode extracts the oops code from an error for internal routing.
func errCode(err error) any {
	if oopsErr, ok := oops.AsOops(err); ok {
		return oopsErr.Code()
	}
	return nil
}
