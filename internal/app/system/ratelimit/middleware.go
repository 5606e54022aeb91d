package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/app/system/jsonutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/network"
	"go.uber.org/zap"
)

// Middleware throttles the wrapped handler under action's policy. Signed-in
// callers are keyed by user id, anonymous ones by client IP. If the backend
// fails the request is let through and the failure logged.
//
// Mount it after authentication so the user is in context:
//
//	r.With(ratelimit.Middleware(limiter, ratelimit.ActionHabitToggle, logger)).
//	    Post("/{id}/toggle", h.Toggle)
func Middleware(l *Limiter, action string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identify(r)
			res, err := l.CheckAction(r.Context(), id, action)
			if err != nil {
				logger.Warn("rate limit check failed; allowing request",
					zap.String("action", action),
					zap.String("path", r.URL.Path),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			SetHeaders(w, res, l.Policy(action).Max)
			if !res.Allowed {
				logger.Info("mutation rate limited",
					zap.String("action", action),
					zap.String("identifier", id),
					zap.Int("retry_after_s", res.RetryAfterSeconds()))
				Reject(w, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Identify returns the rate limit identifier for r.
func Identify(r *http.Request) string {
	if u, ok := auth.CurrentUser(r); ok && u.ID != "" {
		return "user:" + u.ID
	}
	return "ip:" + network.ClientIP(r)
}

// SetHeaders writes the X-RateLimit-* headers for res.
func SetHeaders(w http.ResponseWriter, res Result, limit int) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}

// Reject writes the 429 response for a rejected result.
func Reject(w http.ResponseWriter, res Result) {
	jsonutil.TooManyRequests(w, res.RetryAfter, "Too many requests. Please slow down.")
}
