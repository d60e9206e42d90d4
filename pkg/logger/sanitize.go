package logger

import (
	"net/url"
	"strings"
)

// Query parameter names containing any of these are never logged
var sensitiveQueryKeys = []string{"password", "token", "secret", "email", "auth", "key", "session"}

// SanitizedEmail masks an email address for logging (e.g., "u***@*******.com").
// Only the first character of the local part and the top-level domain survive.
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	runes := []rune(local)
	masked := string(runes[0]) + strings.Repeat("*", len(runes)-1)

	if i := strings.LastIndex(domain, "."); i > 0 {
		domain = strings.Map(func(r rune) rune {
			if r == '.' {
				return r
			}
			return '*'
		}, domain[:i]) + domain[i:]
	}

	return masked + "@" + domain
}

// RedactQuery returns rawQuery unchanged, or "[REDACTED]" when any parameter name
// looks sensitive or the query cannot be parsed
func RedactQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "[REDACTED]"
	}
	for key := range values {
		key = strings.ToLower(key)
		for _, sensitive := range sensitiveQueryKeys {
			if strings.Contains(key, sensitive) {
				return "[REDACTED]"
			}
		}
	}
	return rawQuery
}
