package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// CORS lets the dashboard, served from another origin, call the API with
// its session cookie. allowed lists exact origins, which get credentialed
// CORS. "*" additionally opens the API to any other origin without
// credentials, so a foreign page can never ride the session cookie.
//
// Requests without an Origin header (curl, slackctl) pass through untouched.
func CORS(allowed []string) func(http.Handler) http.Handler {
	allowAll := slices.Contains(allowed, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")
			switch {
			case slices.Contains(allowed, strings.TrimSuffix(origin, "/")):
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				setCORSHeaders(h)
			case allowAll:
				h.Set("Access-Control-Allow-Origin", "*")
				setCORSHeaders(h)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setCORSHeaders(h http.Header) {
	h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	h.Set("Access-Control-Max-Age", "86400")
}
