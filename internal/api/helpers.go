package api

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// clientIP resolves the caller's address. Proxies in front of the server
// set X-Forwarded-For; the first entry is the original client. IPv4
// addresses mapped into IPv6 (::ffff:1.2.3.4) are unwrapped, and the IPv6
// loopback is folded onto the IPv4 one so local visits key consistently.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		addr = strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	addr = strings.TrimPrefix(addr, "::ffff:")
	if addr == "::1" {
		addr = "127.0.0.1"
	}
	return addr
}
