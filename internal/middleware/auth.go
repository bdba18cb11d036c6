package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
)

// Role is the privilege level of a caller.
type Role string

const (
	// RoleAgent is any caller. Agents register, take tasks and move their
	// own tokens.
	RoleAgent Role = "agent"
	// RoleOperator may mint tokens, close distribution periods and run
	// sprints.
	RoleOperator Role = "operator"
)

const headerAPIKey = "X-API-Key"

type roleCtxKey struct{}

// OperatorKey returns middleware that resolves the caller role. A request
// carrying X-API-Key equal to the current key runs as RoleOperator, every
// other request as RoleAgent. With a nil source or an empty key every
// caller is an operator. The key is read per request so rotation applies
// immediately.
func OperatorKey(source func() string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var key string
			if source != nil {
				key = source()
			}
			role := RoleAgent
			if key == "" {
				role = RoleOperator
			} else if got := r.Header.Get(headerAPIKey); got != "" &&
				subtle.ConstantTimeCompare([]byte(got), []byte(key)) == 1 {
				role = RoleOperator
			}
			next.ServeHTTP(w, r.WithContext(WithRole(r.Context(), role)))
		})
	}
}

// WithRole returns ctx carrying role.
func WithRole(ctx context.Context, role Role) context.Context {
	return context.WithValue(ctx, roleCtxKey{}, role)
}

// RoleFromContext returns the caller role, or "" when OperatorKey did not run.
func RoleFromContext(ctx context.Context) Role {
	r, _ := ctx.Value(roleCtxKey{}).(Role)
	return r
}
