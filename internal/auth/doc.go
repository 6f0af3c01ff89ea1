// Package auth gates the bridge's HTTP endpoints.
//
// # Trust Domains
//
// Two independent domains are never conflated:
//
//   - Agent: the in-game plugin sends the shared key in X-Api-Key. The value
//     must equal the configured bridge.api_key exactly.
//   - Operator: the panel exchanges a password for an opaque token and then
//     sends it as "Authorization: Bearer <token>".
//
// # Token Store
//
// Tokens are UUIDv4 strings kept in insertion order. There is no time-based
// expiry. When an issue pushes the set above max_tokens (50), the oldest
// tokens are evicted until token_watermark (25) remain:
//
//	store := auth.NewTokenStore(50, 25)
//	token := store.Issue()
//	store.Valid(token) // true until 50 newer tokens push it out
//
// # Passwords
//
// panel.password is compared verbatim. If panel.password_hash is set it is
// used instead, verified with bcrypt.
package auth
