package reliability

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	StatusInvalidAPIKey     = "Invalid API Key"
	StatusServiceOverloaded = "Service Overloaded"
	StatusConnectionError   = "Connection Error"
	StatusConnectionClosed  = "Connection Closed"
	StatusConnectFailed     = "Failed to access microphone or API"
)

var statusCodePattern = regexp.MustCompile(`\b([45]\d\d)\b`)

// ConnectionStatus maps a transport failure to the user-facing status line.
func ConnectionStatus(code int, detail string) string {
	if code == 0 {
		code = StatusCodeFromText(detail)
	}
	switch code {
	case 401, 403:
		return StatusInvalidAPIKey
	case 503:
		return StatusServiceOverloaded
	default:
		return StatusConnectionError
	}
}

// StatusCodeFromText extracts an HTTP status from an upstream error message.
// Well-known provider phrases map to their status when no number is present.
func StatusCodeFromText(s string) int {
	if m := statusCodePattern.FindStringSubmatch(s); len(m) == 2 {
		if code, err := strconv.Atoi(m[1]); err == nil {
			return code
		}
	}
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "api key not valid"),
		strings.Contains(lower, "permission_denied"),
		strings.Contains(lower, "unauthenticated"):
		return 403
	case strings.Contains(lower, "unavailable"),
		strings.Contains(lower, "overloaded"):
		return 503
	default:
		return 0
	}
}
