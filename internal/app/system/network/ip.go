// Package network resolves the caller's address for rate limiting and the
// request ledger.
package network

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the originating client address. The first parseable
// entry of X-Forwarded-For wins, then X-Real-IP, then the host part of
// RemoteAddr. Header values that are not IP addresses are ignored so a
// malformed header cannot collapse every caller into one limiter key.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := parseIP(part); ip != "" {
				return ip
			}
		}
	}
	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return strings.Trim(r.RemoteAddr, "[]")
}

func parseIP(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	return ""
}
