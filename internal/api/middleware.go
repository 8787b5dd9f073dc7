// Package api implements the TaskHive public REST API using chi.
package api

import (
	"net/http"

	"github.com/taskhive/taskhive/internal/auth"
)

// limitBody caps request bodies at n bytes.
func limitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// owner returns the identity resolved by the auth middleware.
func owner(r *http.Request) string {
	if o := auth.Owner(r.Context()); o != "" {
		return o
	}
	return auth.DefaultOwner
}
