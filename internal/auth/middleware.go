package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// CookieName is the HttpOnly cookie carrying the session JWT.
const CookieName = "session"

// contextKey is unexported so no other package can read or overwrite the
// user ID stored by this middleware.
type contextKey string

const userIDKey contextKey = "userID"

// TokenValidator turns a session token into the user ID it was issued for.
// *TokenService implements it; the server passes the session service,
// which wraps one.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// RequireAuth rejects requests without a valid session token with 401 and
// stores the user ID in the context for the rest.
//
// The token is read from the session cookie, falling back to an
// "Authorization: Bearer <jwt>" header for non-browser callers such as
// slackctl.
func RequireAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"ok":false,"error":"unauthorized","message":"valid session required"}` + "\n"))
				return
			}

			ctx := WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUserID returns a context carrying userID. Handler tests use it to
// skip the middleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user's ID, or ("", false)
// for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

var errNoToken = errors.New("auth: no session token")

func extractUserID(r *http.Request, tokens TokenValidator) (string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return tokens.Validate(cookie.Value)
	}
	if bearer, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && bearer != "" {
		return tokens.Validate(bearer)
	}
	return "", errNoToken
}
