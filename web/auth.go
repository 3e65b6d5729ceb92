// ABOUTME: Bearer token authentication middleware for the /api routes.
// ABOUTME: Accepts an Authorization header or a kodejam_token cookie; health and metrics stay open.
package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const tokenCookie = "kodejam_token"

// AuthMiddleware rejects /api requests that do not carry token. An empty
// token disables the check.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	expected := "Bearer " + token
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if path == "/api/health" || !strings.HasPrefix(path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			if cookie, err := r.Cookie(tokenCookie); err == nil {
				if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(token)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}
