package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/slackdash/internal/apperror"
	"github.com/sakif/slackdash/internal/auth"
	"github.com/sakif/slackdash/internal/model"
	"github.com/sakif/slackdash/internal/service"
)

const stateCookieName = "oauth_state"

// SessionManager is what SessionHandler needs from service.SessionService.
type SessionManager interface {
	Login(ctx context.Context, code string) (*service.LoginResult, error)
	Authorize(ctx context.Context, userID string) (*model.User, error)
	Logout(ctx context.Context) error
}

// AuthURLBuilder builds the Slack authorize URL for a state value.
// slackapi.OAuth implements it.
type AuthURLBuilder interface {
	AuthURL(state string) string
}

// SessionHandler manages the Slack OAuth login and the dashboard session.
//
//   - HandleLogin     → redirect the browser to Slack's authorize page
//   - HandleCallback  → browser flow: exchange the code, set the cookie, redirect
//   - HandleOAuth     → JSON flow: POST {code}, used by the SPA and slackctl
//   - HandleLogout    → clear the session and the cookie
//   - HandleMe        → the logged-in user, without the access token
type SessionHandler struct {
	sessions     SessionManager
	authURL      AuthURLBuilder
	cookieTTL    time.Duration
	dashboardURL string
	logger       *slog.Logger
}

func NewSessionHandler(
	sessions SessionManager,
	authURL AuthURLBuilder,
	cookieTTL time.Duration,
	dashboardURL string,
	logger *slog.Logger,
) *SessionHandler {
	if dashboardURL == "" {
		dashboardURL = "/"
	}
	return &SessionHandler{
		sessions:     sessions,
		authURL:      authURL,
		cookieTTL:    cookieTTL,
		dashboardURL: dashboardURL,
		logger:       logger,
	}
}

// HandleLogin redirects to Slack.
//
// HTTP: GET /auth/slack/login
//
// The random state is kept in a short-lived HttpOnly cookie and checked on
// callback, so a callback we did not start is rejected.
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.authURL.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback completes the browser OAuth flow.
//
// HTTP: GET /auth/slack/callback?code=xxx&state=yyy
func (h *SessionHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.WarnContext(r.Context(), "oauth callback: state mismatch")
		writeError(w, r, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	// The user pressed "Cancel" on Slack's consent screen.
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.InfoContext(r.Context(), "oauth callback: authorization denied",
			slog.String("error", errParam),
		)
		h.redirectToDashboard(w, r, "denied", errParam)
		return
	}

	res, err := h.sessions.Login(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		if code := apperror.CodeOf(err); code != "" {
			h.redirectToDashboard(w, r, "error", code)
			return
		}
		writeError(w, r, err)
		return
	}

	h.setSessionCookie(w, r, res.Token)
	h.redirectToDashboard(w, r, "ok", "")
}

type oauthRequest struct {
	Code string `json:"code"`
}

type oauthResponse struct {
	OK   bool        `json:"ok"`
	User *model.User `json:"user"`
}

// HandleOAuth exchanges a code posted by the client.
//
// HTTP: POST /api/slack/oauth
// Body: {"code": "..."}
//
// The response includes the Slack access token: clients that call Slack
// themselves (slackctl send) need it. The session cookie is set as well.
func (h *SessionHandler) HandleOAuth(w http.ResponseWriter, r *http.Request) {
	var req oauthRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.sessions.Login(r.Context(), req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.setSessionCookie(w, r, res.Token)
	writeJSON(w, http.StatusOK, oauthResponse{OK: true, User: res.User})
}

// HandleLogout destroys the server-side session and deletes the cookie.
//
// HTTP: POST /auth/logout
//
// Unlike a stateless JWT logout this really ends the session: the stored
// Slack token is deleted, so any other cookie for it stops working too.
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// HandleMe returns the session user.
//
// HTTP: GET /api/me
func (h *SessionHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	user, err := h.sessions.Authorize(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

// RequireSession runs after auth.RequireAuth. The cookie only proves who
// logged in; this checks that the login is still the active session.
func (h *SessionHandler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			writeError(w, r, apperror.Unauthorized("valid session required"))
			return
		}
		if _, err := h.sessions.Authorize(r.Context(), userID); err != nil {
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *SessionHandler) setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})
}

// redirectToDashboard sends the browser back with ?auth=<result> so the
// dashboard can show what happened.
func (h *SessionHandler) redirectToDashboard(w http.ResponseWriter, r *http.Request, result, reason string) {
	target, err := url.Parse(h.dashboardURL)
	if err != nil {
		target = &url.URL{Path: "/"}
	}
	q := target.Query()
	q.Set("auth", result)
	if reason != "" {
		q.Set("reason", reason)
	}
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}
