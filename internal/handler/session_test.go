package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/slackdash/internal/apperror"
	"github.com/sakif/slackdash/internal/auth"
	"github.com/sakif/slackdash/internal/handler"
	"github.com/sakif/slackdash/internal/model"
	"github.com/sakif/slackdash/internal/service"
)

func newSessionHandler(sessions *fakeSessions) *handler.SessionHandler {
	return handler.NewSessionHandler(sessions, fakeAuthURL{}, time.Hour, "http://localhost:5173/dashboard", discardLogger())
}

func loggedInUser() *model.User {
	return &model.User{
		ID:          "u1",
		SlackID:     "U123",
		Name:        "Ada",
		TeamID:      "T1",
		Team:        "Acme",
		AccessToken: "xoxp-secret",
	}
}

// =========================================================================
// POST /api/slack/oauth
// =========================================================================

func TestHandleOAuth_Success(t *testing.T) {
	sessions := &fakeSessions{loginRes: &service.LoginResult{User: loggedInUser(), Token: "jwt-token"}}
	h := newSessionHandler(sessions)

	req := httptest.NewRequest(http.MethodPost, "/api/slack/oauth", jsonBody(t, map[string]string{"code": "abc"}))
	rec := httptest.NewRecorder()
	h.HandleOAuth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "xoxp-secret", user["access_token"])
	assert.Equal(t, "Acme", user["team"])
	assert.Equal(t, "Ada", user["name"])
	assert.Equal(t, []string{"abc"}, sessions.loginCodes)

	cookie := findCookie(rec, auth.CookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, "jwt-token", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)
}

func TestHandleOAuth_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		loginErr   error
		wantStatus int
		wantCode   string
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest, "validation_error"},
		{"missing code", `{}`, apperror.ValidationFailed("code", "Missing code"), http.StatusBadRequest, "validation_error"},
		{"slack rejects code", `{"code":"old"}`, apperror.Remote("oauth.v2.access", "invalid_code"), http.StatusBadRequest, "invalid_code"},
		{"slack unreachable", `{"code":"abc"}`, apperror.Transport("oauth.v2.access", context.DeadlineExceeded), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newSessionHandler(&fakeSessions{loginErr: tt.loginErr})

			req := httptest.NewRequest(http.MethodPost, "/api/slack/oauth", stringsReader(tt.body))
			rec := httptest.NewRecorder()
			h.HandleOAuth(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, false, body["ok"])
			assert.Equal(t, tt.wantCode, body["error"])
			assert.Nil(t, findCookie(rec, auth.CookieName))
		})
	}
}

// =========================================================================
// BROWSER FLOW
// =========================================================================

func TestHandleLogin_SetsStateAndRedirects(t *testing.T) {
	h := newSessionHandler(&fakeSessions{})

	rec := httptest.NewRecorder()
	h.HandleLogin(rec, httptest.NewRequest(http.MethodGet, "/auth/slack/login", nil))

	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	state := findCookie(rec, "oauth_state")
	require.NotNil(t, state)
	assert.NotEmpty(t, state.Value)
	assert.Equal(t, "https://slack.com/oauth/v2/authorize?state="+state.Value, rec.Header().Get("Location"))
}

func callback(h *handler.SessionHandler, query, stateCookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/slack/callback?"+query, nil)
	if stateCookie != "" {
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: stateCookie})
	}
	rec := httptest.NewRecorder()
	h.HandleCallback(rec, req)
	return rec
}

func redirectQuery(t *testing.T, rec *httptest.ResponseRecorder) url.Values {
	t.Helper()
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/dashboard", loc.Path)
	return loc.Query()
}

func TestHandleCallback_Success(t *testing.T) {
	sessions := &fakeSessions{loginRes: &service.LoginResult{User: loggedInUser(), Token: "jwt-token"}}
	h := newSessionHandler(sessions)

	rec := callback(h, "code=abc&state=s1", "s1")

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "ok", redirectQuery(t, rec).Get("auth"))
	cookie := findCookie(rec, auth.CookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, "jwt-token", cookie.Value)
}

func TestHandleCallback_StateMismatch(t *testing.T) {
	sessions := &fakeSessions{}
	h := newSessionHandler(sessions)

	for _, tc := range []struct{ query, cookie string }{
		{"code=abc&state=s1", ""},
		{"code=abc&state=s1", "other"},
		{"code=abc", "s1"},
	} {
		rec := callback(h, tc.query, tc.cookie)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	assert.Empty(t, sessions.loginCodes, "no exchange without a valid state")
}

func TestHandleCallback_Denied(t *testing.T) {
	sessions := &fakeSessions{}
	h := newSessionHandler(sessions)

	rec := callback(h, "error=access_denied&state=s1", "s1")

	require.Equal(t, http.StatusSeeOther, rec.Code)
	q := redirectQuery(t, rec)
	assert.Equal(t, "denied", q.Get("auth"))
	assert.Equal(t, "access_denied", q.Get("reason"))
	assert.Empty(t, sessions.loginCodes)
}

func TestHandleCallback_SlackRejectsCode(t *testing.T) {
	h := newSessionHandler(&fakeSessions{loginErr: apperror.Remote("oauth.v2.access", "invalid_code")})

	rec := callback(h, "code=abc&state=s1", "s1")

	require.Equal(t, http.StatusSeeOther, rec.Code)
	q := redirectQuery(t, rec)
	assert.Equal(t, "error", q.Get("auth"))
	assert.Equal(t, "invalid_code", q.Get("reason"))
}

// =========================================================================
// LOGOUT / ME / RequireSession
// =========================================================================

func TestHandleLogout(t *testing.T) {
	sessions := &fakeSessions{}
	h := newSessionHandler(sessions)

	rec := httptest.NewRecorder()
	h.HandleLogout(rec, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.True(t, sessions.loggedOut)
	cookie := findCookie(rec, auth.CookieName)
	require.NotNil(t, cookie)
	assert.Less(t, cookie.MaxAge, 0)
}

func TestHandleMe_OmitsAccessToken(t *testing.T) {
	h := newSessionHandler(&fakeSessions{user: loggedInUser()})

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req = req.WithContext(auth.WithUserID(req.Context(), "u1"))
	rec := httptest.NewRecorder()
	h.HandleMe(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "U123", body["slack_id"])
	assert.NotContains(t, body, "access_token")
	assert.NotContains(t, rec.Body.String(), "xoxp-")
}

func TestRequireSession(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		userID     string
		authErr    error
		wantStatus int
	}{
		{"active session", "u1", nil, http.StatusNoContent},
		{"no user in context", "", nil, http.StatusUnauthorized},
		{"session replaced", "u1", apperror.Unauthorized("session has been replaced, log in again"), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newSessionHandler(&fakeSessions{user: loggedInUser(), authErr: tt.authErr})

			req := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
			if tt.userID != "" {
				req = req.WithContext(auth.WithUserID(req.Context(), tt.userID))
			}
			rec := httptest.NewRecorder()
			h.RequireSession(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}
