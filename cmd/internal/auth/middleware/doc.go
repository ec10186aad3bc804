// Package middleware authenticates bearer access tokens and authorizes
// requests by user type.
//
// Authenticator.Middleware verifies the token and attaches its claims to the
// request context; RequireUserTypes then gates routes on the claims' user-type
// name. NewBypassAuthenticator is a development-only replacement that attaches
// a synthetic identity; app refuses to build one in production.
package middleware
