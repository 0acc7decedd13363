package runtime

import (
	"regexp"
	"strings"
)

// MaxLogLength bounds the SQL text written to logs.
const MaxLogLength = 200

const redacted = "[REDACTED]"

var (
	passwordPattern  = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)
	urlCredPattern   = regexp.MustCompile(`://([^:/@\s]+):[^@\s]+@`)
	mysqlCredPattern = regexp.MustCompile(`^([^:/@\s]+):[^@\s]+@`)
)

// Truncate shortens s to maxLen bytes, marking the cut with an ellipsis.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// SanitizeDSN removes passwords from a connection string before it is logged. URL, key=value
// and MySQL user:pass@tcp(...) forms are recognised.
func SanitizeDSN(dsn string) string {
	s := passwordPattern.ReplaceAllString(dsn, "${1}="+redacted)
	if strings.Contains(s, "://") {
		return urlCredPattern.ReplaceAllString(s, "://${1}:"+redacted+"@")
	}
	return mysqlCredPattern.ReplaceAllString(s, "${1}:"+redacted+"@")
}
