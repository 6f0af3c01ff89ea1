// ABOUTME: Shared-secret gate for requests originating from the in-game agent.
// ABOUTME: The X-Api-Key header must match the configured key exactly.

package auth

import (
	"net/http"
)

// APIKeyHeader carries the agent's shared secret.
const APIKeyHeader = "X-Api-Key"

// APIKeyMiddleware rejects requests whose X-Api-Key header is not exactly key.
// An empty key rejects everything.
func APIKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(APIKeyHeader)
			if key == "" || got != key {
				unauthorized(w, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
