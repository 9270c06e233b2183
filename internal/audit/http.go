package audit

import (
	"net"
	"net/http"
	"strings"
)

// maxUserAgent bounds the user agent kept on an audit row.
const maxUserAgent = 256

// RequestOrigin returns the client address and user agent recorded with a ledger mutation.
func RequestOrigin(r *http.Request) (ip, userAgent string) {
	if r == nil {
		return "", ""
	}
	userAgent = strings.TrimSpace(r.UserAgent())
	if runes := []rune(userAgent); len(runes) > maxUserAgent {
		userAgent = string(runes[:maxUserAgent])
	}
	return ClientIP(r), userAgent
}

// ClientIP returns the first address the request passed through: the leading
// X-Forwarded-For hop, then X-Real-IP, then the socket peer. Header values that
// do not parse as an IP are skipped.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); first != "" {
		if ip := parseIP(first); ip != "" {
			return ip
		}
	}
	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if ip := parseIP(r.RemoteAddr); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func parseIP(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		value = host
	}
	ip := net.ParseIP(strings.Trim(value, "[]"))
	if ip == nil {
		return ""
	}
	return ip.String()
}
