package observability

import (
	"strings"
	"unicode"
)

const defaultStringLimit = 256

// sanitizeString strips control characters and caps string length to avoid log injection.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}

	var b strings.Builder
	b.Grow(len(value))
	count := 0
	for _, r := range value {
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		if count >= limit {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// SanitizeRoute removes control characters and enforces length constraints on routes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod removes control characters in HTTP methods.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeUserID caps identifiers so request logs never carry full tokens.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return sanitizeString(uid, 64)
}
