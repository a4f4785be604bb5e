// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/auth/memory"
	"github.com/gatehouse/gatehouse/internal/httpapi"
)

const (
	testUserAgent = "gatehouse-test/1.0"
	testPassword  = "correct horse battery staple"
)

type apiFixture struct {
	handler  http.Handler
	sessions *memory.SessionRepository
	tokens   *memory.RememberTokenRepository
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	users := memory.NewUserRepository()
	sessions := memory.NewSessionRepository()
	tokens := memory.NewRememberTokenRepository()

	authenticator, err := auth.NewAuthenticator(users, auth.NewArgon2idHasher())
	require.NoError(t, err)
	sm, err := auth.NewSessionManager(sessions, 30*time.Minute)
	require.NoError(t, err)
	rm, err := auth.NewRememberTokenManager(tokens, time.Hour)
	require.NoError(t, err)
	svc, err := auth.NewService(authenticator, sm, rm)
	require.NoError(t, err)

	_, err = authenticator.Register(context.Background(), "alice", testPassword)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server, err := httpapi.NewServer(svc, httpapi.Options{
		SessionCookie:  "gatehouse_session",
		RememberCookie: "gatehouse_remember",
	}, logger)
	require.NoError(t, err)

	return &apiFixture{handler: server.Handler(), sessions: sessions, tokens: tokens}
}

func (f *apiFixture) do(method, path, body string, cookies []*http.Cookie, header http.Header) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("User-Agent", testUserAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) login(t *testing.T, remember bool) (authBody, []*http.Cookie) {
	t.Helper()
	body := `{"username":"alice","password":"` + testPassword + `"`
	if remember {
		body += `,"remember":true`
	}
	body += `}`

	rec := f.do(http.MethodPost, "/v1/login", body, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeAuthBody(t, rec), rec.Result().Cookies()
}

type authBody struct {
	UserID    string `json:"user_id"`
	CSRFToken string `json:"csrf_token"`
	Resumed   bool   `json:"resumed"`
}

func decodeAuthBody(t *testing.T, rec *httptest.ResponseRecorder) authBody {
	t.Helper()
	var body authBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHandleLogin(t *testing.T) {
	t.Run("valid credentials set a session cookie", func(t *testing.T) {
		f := newAPIFixture(t)
		body, cookies := f.login(t, false)

		assert.NotEmpty(t, body.UserID)
		assert.NotEmpty(t, body.CSRFToken)

		session := findCookie(cookies, "gatehouse_session")
		require.NotNil(t, session)
		assert.NotEmpty(t, session.Value)
		assert.True(t, session.HttpOnly)
		assert.Equal(t, http.SameSiteStrictMode, session.SameSite)
		assert.Zero(t, session.MaxAge, "session cookie must not outlive the browser session")

		assert.Nil(t, findCookie(cookies, "gatehouse_remember"))
	})

	t.Run("remember flag sets the remember cookie with a TTL", func(t *testing.T) {
		f := newAPIFixture(t)
		_, cookies := f.login(t, true)

		remember := findCookie(cookies, "gatehouse_remember")
		require.NotNil(t, remember)
		assert.NotEmpty(t, remember.Value)
		assert.Equal(t, int(time.Hour/time.Second), remember.MaxAge)
	})

	t.Run("bad credentials produce the generic 401", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(http.MethodPost, "/v1/login",
			`{"username":"alice","password":"wrong"}`, nil, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())
	})

	t.Run("unknown user produces the identical body", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(http.MethodPost, "/v1/login",
			`{"username":"mallory","password":"wrong"}`, nil, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())
	})

	t.Run("failure clears presented cookies", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(http.MethodPost, "/v1/login",
			`{"username":"alice","password":"wrong"}`, nil, nil)

		session := findCookie(rec.Result().Cookies(), "gatehouse_session")
		require.NotNil(t, session)
		assert.Empty(t, session.Value)
		assert.Equal(t, -1, session.MaxAge)
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(http.MethodPost, "/v1/login", `{not json`, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleSession(t *testing.T) {
	t.Run("live session resumes without rotation", func(t *testing.T) {
		f := newAPIFixture(t)
		loginBody, cookies := f.login(t, false)

		rec := f.do(http.MethodGet, "/v1/session", "", cookies, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeAuthBody(t, rec)
		assert.Equal(t, loginBody.UserID, body.UserID)
		assert.Equal(t, loginBody.CSRFToken, body.CSRFToken)
		assert.False(t, body.Resumed)
		assert.Empty(t, rec.Result().Cookies(), "no cookies rotate on a plain validation")
	})

	t.Run("no cookies is a 401", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(http.MethodGet, "/v1/session", "", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())
	})

	t.Run("different client fingerprint is a 401", func(t *testing.T) {
		f := newAPIFixture(t)
		_, cookies := f.login(t, false)

		req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
		req.Header.Set("User-Agent", "evil-browser/6.66")
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("lost session resumes from the remember cookie", func(t *testing.T) {
		f := newAPIFixture(t)
		loginBody, cookies := f.login(t, true)

		// Simulate the idle sweep removing the session server side.
		require.Equal(t, 1, f.sessions.Len())
		f.sessions.Clear()

		rec := f.do(http.MethodGet, "/v1/session", "", cookies, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeAuthBody(t, rec)
		assert.True(t, body.Resumed)
		assert.Equal(t, loginBody.UserID, body.UserID)

		rotated := rec.Result().Cookies()
		newSession := findCookie(rotated, "gatehouse_session")
		require.NotNil(t, newSession)
		assert.NotEmpty(t, newSession.Value)

		newRemember := findCookie(rotated, "gatehouse_remember")
		require.NotNil(t, newRemember)
		assert.NotEmpty(t, newRemember.Value)
		assert.NotEqual(t, findCookie(cookies, "gatehouse_remember").Value, newRemember.Value,
			"remember token must rotate on use")
	})

	t.Run("replayed remember token is a 401", func(t *testing.T) {
		f := newAPIFixture(t)
		_, cookies := f.login(t, true)

		f.sessions.Clear()
		first := f.do(http.MethodGet, "/v1/session", "", cookies, nil)
		require.Equal(t, http.StatusOK, first.Code)

		// Replay the original cookies: the session is new, the token spent.
		f.sessions.Clear()
		second := f.do(http.MethodGet, "/v1/session", "", cookies, nil)
		assert.Equal(t, http.StatusUnauthorized, second.Code)
	})
}

func TestHandleLogout(t *testing.T) {
	t.Run("valid CSRF token logs out and clears cookies", func(t *testing.T) {
		f := newAPIFixture(t)
		loginBody, cookies := f.login(t, true)

		header := http.Header{}
		header.Set("X-CSRF-Token", loginBody.CSRFToken)
		rec := f.do(http.MethodPost, "/v1/logout", "", cookies, header)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Zero(t, f.sessions.Len())
		assert.Zero(t, f.tokens.Len())

		cleared := findCookie(rec.Result().Cookies(), "gatehouse_session")
		require.NotNil(t, cleared)
		assert.Equal(t, -1, cleared.MaxAge)
	})

	t.Run("missing CSRF token is a 403", func(t *testing.T) {
		f := newAPIFixture(t)
		_, cookies := f.login(t, false)

		rec := f.do(http.MethodPost, "/v1/logout", "", cookies, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, 1, f.sessions.Len(), "session must survive the rejected request")
	})

	t.Run("forged CSRF token is a 403", func(t *testing.T) {
		f := newAPIFixture(t)
		_, cookies := f.login(t, false)

		header := http.Header{}
		header.Set("X-CSRF-Token", "forged")
		rec := f.do(http.MethodPost, "/v1/logout", "", cookies, header)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("logout without a live session still succeeds", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(http.MethodPost, "/v1/logout", "", nil, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
