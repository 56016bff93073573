package logger

import "strings"

// MaskEmail redacts the local part of an email address for log output,
// keeping the first character and the domain.
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// sensitiveParams are query parameter names that must never reach the logs.
var sensitiveParams = []string{
	"token", "code", "password", "secret", "session", "key",
}

// SanitizeQueryString reports whether a raw query string carries a sensitive
// parameter and should be redacted from log output.
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}
	lower := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(lower, param+"=") {
			return true
		}
	}
	return false
}
