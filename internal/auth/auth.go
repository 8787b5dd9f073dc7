// Package auth resolves the owner id a request acts as and carries it in the
// request context.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// HeaderOwner forwards the resolved owner between internal services.
const HeaderOwner = "X-Owner-ID"

// DefaultOwner is the owner used when authentication is disabled.
const DefaultOwner = "demo-user-12345"

// Modes.
const (
	ModeDisabled = "disabled"
	ModeToken    = "token"
)

type ctxKey struct{}

// WithOwner returns a copy of ctx carrying owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ctxKey{}, owner)
}

// Owner returns the owner stored in ctx, or "" when none is set.
func Owner(ctx context.Context) string {
	owner, _ := ctx.Value(ctxKey{}).(string)
	return owner
}

// Middleware resolves the caller's owner id.
// In token mode the "Authorization: Bearer <token>" header must name a key
// of tokens and the request acts as the mapped owner; otherwise 401.
// In any other mode every request acts as defaultOwner.
func Middleware(mode, defaultOwner string, tokens map[string]string) func(http.Handler) http.Handler {
	if defaultOwner == "" {
		defaultOwner = DefaultOwner
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if mode != ModeToken {
				next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), defaultOwner)))
				return
			}
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			owner, known := tokens[token]
			if !ok || !known || owner == "" {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

// TrustedHeader reads the owner from HeaderOwner, falling back to
// defaultOwner. It is meant for services reachable only from the internal
// network.
func TrustedHeader(defaultOwner string) func(http.Handler) http.Handler {
	if defaultOwner == "" {
		defaultOwner = DefaultOwner
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			owner := strings.TrimSpace(r.Header.Get(HeaderOwner))
			if owner == "" {
				owner = defaultOwner
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
}
