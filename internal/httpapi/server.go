// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package httpapi exposes the authentication service over HTTP. The
// transport owns everything request-shaped: cookies, the CSRF header,
// fingerprint derivation, and the generic 401 surface. The core service
// never sees an http.Request.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// CSRFHeader is the request header carrying the per-session CSRF token on
// state-changing requests.
const CSRFHeader = "X-CSRF-Token"

// Options configures cookie behavior.
type Options struct {
	// SessionCookie is the name of the session identifier cookie.
	SessionCookie string
	// RememberCookie is the name of the remember token cookie.
	RememberCookie string
	// CookieSecure marks cookies Secure. Disable only for local development
	// over plain HTTP.
	CookieSecure bool
}

// Server handles the authentication endpoints.
type Server struct {
	svc    *auth.Service
	opts   Options
	logger *slog.Logger
}

// NewServer creates the HTTP transport over the authentication facade.
func NewServer(svc *auth.Service, opts Options, logger *slog.Logger) (*Server, error) {
	if svc == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if opts.SessionCookie == "" || opts.RememberCookie == "" {
		return nil, oops.Errorf("cookie names are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, opts: opts, logger: logger}, nil
}

// Handler returns the routed handler with logging and panic recovery.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/login", s.handleLogin)
	mux.HandleFunc("GET /v1/session", s.handleSession)
	mux.HandleFunc("POST /v1/logout", s.handleLogout)

	var h http.Handler = mux
	h = Logging(s.logger)(h)
	h = Recover(s.logger)(h)
	return h
}
