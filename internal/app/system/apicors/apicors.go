// Package apicors sets CORS headers for endpoints authenticated by bearer
// key rather than cookies. With no cookies in play any origin may call, and
// credentials are never allowed.
package apicors

import (
	"net/http"
	"strings"
)

const (
	allowMethods = "POST, OPTIONS"
	allowHeaders = "Authorization, Content-Type, Accept, X-Request-ID"
	maxAge       = "86400"
)

// Middleware answers preflights and decorates responses. With no origins
// every origin is allowed ("*"); otherwise only listed origins are echoed
// back and others get no Allow-Origin header.
func Middleware(origins ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if len(allowed) == 0 {
				h.Set("Access-Control-Allow-Origin", "*")
			} else if origin := r.Header.Get("Origin"); origin != "" {
				h.Add("Vary", "Origin")
				if _, ok := allowed[origin]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
				}
			}
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Max-Age", maxAge)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
