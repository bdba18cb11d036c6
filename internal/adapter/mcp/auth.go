package mcp

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware checks the Authorization header against the key returned
// by apiKey, read per request so a rotated key applies at once. Both
// "Bearer <key>" and a bare key are accepted. A nil source or an empty key
// lets every request through.
func AuthMiddleware(apiKey func() string, next http.Handler) http.Handler {
	if apiKey == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := apiKey()
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		switch {
		case token == "":
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
		case subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1:
			http.Error(w, "invalid credentials", http.StatusForbidden)
		default:
			next.ServeHTTP(w, r)
		}
	})
}
