// ABOUTME: HTTP middleware for operator bearer tokens on panel endpoints
// ABOUTME: Extracts the token from the Authorization header and checks set membership

package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// BearerMiddleware rejects requests without a token issued by store.
// Websocket clients may pass the token as the "token" query parameter,
// since browsers cannot set headers on the upgrade request.
func BearerMiddleware(store *TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				if q := r.URL.Query().Get("token"); q != "" && isUpgrade(r) {
					token, errMsg = q, ""
				}
			}
			if errMsg != "" {
				unauthorized(w, errMsg)
				return
			}

			if !store.Valid(token) {
				unauthorized(w, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), &Operator{Token: token})))
		})
	}
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// unauthorized writes a JSON 401 body of the form {"error": msg}.
func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
