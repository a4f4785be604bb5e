// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gatehouse/gatehouse/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

type authResponse struct {
	UserID    string `json:"user_id"`
	CSRFToken string `json:"csrf_token"`
	Resumed   bool   `json:"resumed,omitempty"`
}

// handleLogin authenticates credentials and issues fresh cookies. Any
// session identifier that accompanied the request is destroyed by the
// service before the new one is created.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := s.svc.Login(r.Context(), auth.LoginRequest{
		Username:       req.Username,
		Password:       req.Password,
		Remember:       req.Remember,
		Fingerprint:    fingerprint(r),
		PriorSessionID: s.cookieValue(r, s.opts.SessionCookie),
	})
	if err != nil {
		s.clearAuthCookies(w)
		writeUnauthenticated(w)
		return
	}

	s.setSessionCookie(w, result.SessionID)
	if result.RememberToken != "" {
		s.setRememberCookie(w, result.RememberToken)
	}

	writeJSON(w, http.StatusOK, authResponse{
		UserID:    result.UserID.String(),
		CSRFToken: result.CSRFToken,
	})
}

// handleSession reports the authenticated context for the presented cookies,
// silently re-authenticating from the remember token when the session is
// gone. A resume rotates both the session and remember cookies.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	authCtx, err := s.svc.Resume(r.Context(), auth.ResumeRequest{
		SessionID:     s.cookieValue(r, s.opts.SessionCookie),
		RememberToken: s.cookieValue(r, s.opts.RememberCookie),
		Fingerprint:   fingerprint(r),
	})
	if err != nil {
		s.clearAuthCookies(w)
		writeUnauthenticated(w)
		return
	}

	if authCtx.Resumed {
		s.setSessionCookie(w, authCtx.SessionID)
		s.setRememberCookie(w, authCtx.RememberToken)
	}

	writeJSON(w, http.StatusOK, authResponse{
		UserID:    authCtx.UserID.String(),
		CSRFToken: authCtx.CSRFToken,
		Resumed:   authCtx.Resumed,
	})
}

// handleLogout destroys the presented session and revokes the remember
// tokens of its owner. When the session is still live the CSRF header must
// match; without a live session there is nothing to forge and the logout
// degrades to clearing cookies.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	rawSessionID := s.cookieValue(r, s.opts.SessionCookie)
	rawRemember := s.cookieValue(r, s.opts.RememberCookie)

	if rawSessionID != "" {
		session, err := s.svc.Sessions().Validate(r.Context(), rawSessionID, fingerprint(r))
		if err == nil {
			if csrfErr := s.svc.Sessions().ValidateCSRF(session, r.Header.Get(CSRFHeader)); csrfErr != nil {
				writeError(w, http.StatusForbidden, "missing or invalid CSRF token")
				return
			}
		}
	}

	s.svc.Logout(r.Context(), rawSessionID, rawRemember)
	s.clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

// fingerprint derives the session binding value from stable request
// metadata. Hashing keeps raw header contents out of the store.
func fingerprint(r *http.Request) string {
	sum := sha256.Sum256([]byte(r.UserAgent()))
	return hex.EncodeToString(sum[:])
}

func (s *Server) cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// setSessionCookie issues the session cookie. No Max-Age: the cookie lives
// for the browser session, the server enforces the idle timeout.
func (s *Server) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.SessionCookie,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// setRememberCookie issues the remember cookie with the token's TTL.
func (s *Server) setRememberCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.RememberCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.svc.Remember().TTL() / time.Second),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{s.opts.SessionCookie, s.opts.RememberCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   s.opts.CookieSecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // response write error means the client is gone
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeUnauthenticated is the single body every authentication failure
// produces. The cause is audit-logged server side only.
func writeUnauthenticated(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "authentication required")
}
