// Package token derives storage keys for refresh tokens.
//
// Plain refresh tokens never reach persistence. Stores key records by
// HMAC-SHA256(token, WORKSITE_TOKEN_HMAC_KEY) when a key is configured and by
// SHA-256(token) otherwise. Production deployments set
// WORKSITE_REQUIRE_TOKEN_HMAC=true so a missing key fails startup.
package token
