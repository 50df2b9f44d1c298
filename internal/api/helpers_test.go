package api

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"remote addr with port", "203.0.113.7:51234", "", "203.0.113.7"},
		{"forwarded single", "10.0.0.1:80", "203.0.113.7", "203.0.113.7"},
		{"forwarded chain keeps first", "10.0.0.1:80", "203.0.113.7, 10.0.0.2, 10.0.0.3", "203.0.113.7"},
		{"forwarded with spaces", "10.0.0.1:80", "  203.0.113.7 ", "203.0.113.7"},
		{"ipv4 mapped ipv6", "::ffff:203.0.113.7", "", "203.0.113.7"},
		{"ipv6 loopback", "[::1]:51234", "", "127.0.0.1"},
		{"bare ipv6 loopback", "::1", "", "127.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
