package audit

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name      string
		forwarded string
		realIP    string
		remote    string
		want      string
	}{
		{"forwarded chain", "203.0.113.7, 10.0.0.1", "", "10.0.0.2:5000", "203.0.113.7"},
		{"forwarded with port", "203.0.113.7:4431", "", "10.0.0.2:5000", "203.0.113.7"},
		{"garbage forwarded falls back", "unknown", "198.51.100.4", "10.0.0.2:5000", "198.51.100.4"},
		{"ipv6 peer", "", "", "[2001:db8::1]:443", "2001:db8::1"},
		{"peer only", "", "", "192.0.2.10:1234", "192.0.2.10"},
		{"unparseable peer kept", "", "", "pipe", "pipe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/v1/charges/1/settle", nil)
			req.RemoteAddr = tc.remote
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := ClientIP(req); got != tc.want {
				t.Fatalf("ClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRequestOriginTruncatesUserAgent(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/municipalities/1/withdrawals", nil)
	req.RemoteAddr = "192.0.2.10:1234"
	req.Header.Set("User-Agent", strings.Repeat("é", 300))

	ip, ua := RequestOrigin(req)
	if ip != "192.0.2.10" {
		t.Fatalf("unexpected ip %q", ip)
	}
	if n := len([]rune(ua)); n != maxUserAgent {
		t.Fatalf("expected %d runes, got %d", maxUserAgent, n)
	}

	if ip, ua := RequestOrigin(nil); ip != "" || ua != "" {
		t.Fatalf("nil request should yield empty origin")
	}
}
