package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/consistencygrid/consistencygrid/internal/app/system/jsonutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/network"
	"go.uber.org/zap"
)

// APIKeyAuth requires "Authorization: Bearer <key>" on server-to-server
// callbacks such as the payment webhook. keys is a comma-separated list so
// a new key can be rolled out before the old one is retired. An empty list
// rejects every request.
func APIKeyAuth(keys string, logger *zap.Logger) func(http.Handler) http.Handler {
	valid := splitKeys(keys)
	if len(valid) == 0 {
		logger.Warn("no API key configured; bearer-authenticated routes will reject every call")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(valid) == 0 {
				jsonutil.Unauthorized(w, "API authentication not configured")
				return
			}

			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				logger.Debug("bearer auth: missing or malformed header", zap.String("path", r.URL.Path))
				jsonutil.Unauthorized(w, "Missing or malformed Authorization header")
				return
			}

			if !matchesAny(strings.TrimSpace(token), valid) {
				logger.Warn("bearer auth: invalid key",
					zap.String("path", r.URL.Path),
					zap.String("ip", network.ClientIP(r)))
				jsonutil.Unauthorized(w, "Invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func splitKeys(keys string) [][]byte {
	var out [][]byte
	for _, k := range strings.Split(keys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, []byte(k))
		}
	}
	return out
}

// matchesAny compares against every key so timing does not reveal which
// one matched.
func matchesAny(token string, keys [][]byte) bool {
	got := []byte(token)
	match := 0
	for _, k := range keys {
		match |= subtle.ConstantTimeCompare(got, k)
	}
	return match == 1
}
