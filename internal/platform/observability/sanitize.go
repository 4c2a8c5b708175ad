package observability

import (
	"strings"
	"unicode"
)

const (
	maxRouteLength  = 180
	maxMethodLength = 10
	maxUserIDLength = 64
	maxAddrLength   = 64
)

// clip drops non-whitespace control characters and truncates value to limit runes.
func clip(value string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range value {
		if n == limit {
			break
		}
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// SanitizeRoute bounds route labels used in logs, spans and metrics.
func SanitizeRoute(route string) string {
	route = clip(strings.TrimSpace(route), maxRouteLength)
	if route == "" {
		return "/"
	}
	return route
}

func SanitizeMethod(method string) string {
	return strings.ToUpper(clip(strings.TrimSpace(method), maxMethodLength))
}

func SanitizeUserID(uid string) string {
	return clip(strings.TrimSpace(uid), maxUserIDLength)
}
