package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalisation (trim + lower-case).
// No syntactic validation is applied beyond presence.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeOrgName collapses inner whitespace and trims.
func NormalizeOrgName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
