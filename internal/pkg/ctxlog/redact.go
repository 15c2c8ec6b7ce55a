package ctxlog

import "strings"

// RedactEmail masks the local part of an address for logging:
// "alice@example.com" becomes "a***@example.com".
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
