// Package session implements the worksite session lifecycle.
//
// Login verifies credentials and issues a pair of HS256 JWTs: a short-lived
// access token carrying identity and permission claims, and a long-lived
// refresh token carrying only the user id. Each token family is signed with
// its own secret. Refresh tokens are recorded in a Store (keyed by digest,
// never in plaintext) so logout can revoke them; refresh re-checks the record
// before minting a new access token. Access tokens are stateless and expire
// on their own.
//
// Refresh tokens are reusable until expiry or logout unless rotation is
// enabled, in which case every refresh atomically revokes the presented token
// and returns a new one.
package session
