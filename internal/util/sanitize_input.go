package util

import (
	"html"
	"strings"
)

// SanitizeInput trims s and escapes HTML so it is safe to echo back.
func SanitizeInput(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// NormalizeEmail trims and lower-cases an email address. Format validation is
// left to the identity provider.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MaskEmail keeps the first character of the local part for log lines,
// e.g. "a***@example.com".
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
