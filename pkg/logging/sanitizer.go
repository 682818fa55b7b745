// Package logging provides log sanitization helpers. Queries, backend
// errors, and connection strings routinely carry credentials (SQL
// passwords, AAD bearer tokens, client secrets) and must be passed
// through these helpers before logging.
package logging

import "regexp"

const (
	// MaxQueryLogLength caps how much of a generated query is logged.
	MaxQueryLogLength = 200
	// RedactedText replaces sensitive data.
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, client_secret=xxx in connection strings and form bodies
	secretKVPattern = regexp.MustCompile(`(?i)(password|pwd|client_secret|client-secret)=[^;&\s]+`)

	// Bearer tokens (three base64url segments)
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	// API keys passed as key=value
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey)=[A-Za-z0-9-_]{16,}`)

	// user:pass@host credentials embedded in URLs
	urlCredsPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeConnectionString removes credentials from a connection string
// before it is logged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := secretKVPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return urlCredsPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeError scrubs an error message that may echo connection
// details or tokens back from a backend.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	s := secretKVPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	return urlCredsPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeQuery truncates and scrubs a query for logging. Generated
// queries occasionally embed literals copied from the question, so the
// same secret patterns apply.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	s := query
	if len(s) > MaxQueryLogLength {
		s = s[:MaxQueryLogLength] + "..."
	}
	s = secretKVPattern.ReplaceAllString(s, "${1}="+RedactedText)
	return apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
}

// Truncate shortens s to maxLen with an ellipsis.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
