// Package middleware provides HTTP middlewares for caller identity and logging.
package middleware

import (
	"context"
	"net/http"
)

type ctxKey string

const userKey ctxKey = "user"

// IdentityHeader carries the authenticated user handle set by the
// fronting SSO layer. The service itself performs no end-user
// authentication; it trusts this header from its private front end.
const IdentityHeader = "X-Authenticated-User"

// Identity is a middleware that requires the authenticated-user header
// on every request and stores its value in the request context as the
// user handle for downstream handlers.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(IdentityHeader)
		if user == "" {
			http.Error(w, "no authenticated user", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserIDFromContext extracts the authenticated user handle from the
// request context. Returns an empty string if not found.
func GetUserIDFromContext(ctx context.Context) string {
	val := ctx.Value(userKey)
	if s, ok := val.(string); ok {
		return s
	}
	return ""
}
