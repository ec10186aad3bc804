package identity

import "strings"

// NormalizeEmail canonicalizes an email for lookup: trimmed and lower-cased.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
