package network

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"forwarded single", "198.51.100.1", "", "10.0.0.1:5000", "198.51.100.1"},
		{"forwarded chain takes first", "198.51.100.1, 10.0.0.2, 172.16.0.1", "", "10.0.0.1:5000", "198.51.100.1"},
		{"forwarded padded", "  198.51.100.1  ", "", "10.0.0.1:5000", "198.51.100.1"},
		{"forwarded skips junk", "unknown, 198.51.100.9", "", "10.0.0.1:5000", "198.51.100.9"},
		{"forwarded all junk falls through", "unknown", "", "10.0.0.1:5000", "10.0.0.1"},
		{"real ip", "", "198.51.100.2", "10.0.0.1:5000", "198.51.100.2"},
		{"forwarded beats real ip", "198.51.100.1", "198.51.100.2", "10.0.0.1:5000", "198.51.100.1"},
		{"junk real ip ignored", "", "localhost", "10.0.0.1:5000", "10.0.0.1"},
		{"remote addr v4", "", "", "203.0.113.7:5555", "203.0.113.7"},
		{"remote addr v6", "", "", "[2001:db8::1]:443", "2001:db8::1"},
		{"remote addr without port", "", "", "203.0.113.7", "203.0.113.7"},
		{"forwarded v6", "2001:db8::2", "", "10.0.0.1:5000", "2001:db8::2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := ClientIP(req); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
