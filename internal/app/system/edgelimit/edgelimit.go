// Package edgelimit is a coarse per-IP token bucket in front of the
// unauthenticated sign-up and sign-in routes, where there is no user id to
// key on. Per-user mutation budgets live in package ratelimit.
package edgelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/system/clock"
	"github.com/consistencygrid/consistencygrid/internal/app/system/jsonutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/network"
	"github.com/consistencygrid/consistencygrid/internal/app/system/tasks"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter holds one token bucket per client IP.
type Limiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	idle     time.Duration
	clock    clock.Clock
	logger   *zap.Logger
}

// New creates a Limiter allowing perSecond requests per IP with the given
// burst. Buckets unused for idle are dropped by Cleanup.
func New(perSecond float64, burst int, idle time.Duration, c clock.Clock, logger *zap.Logger) *Limiter {
	if burst < 1 {
		burst = 1
	}
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
		clock:    clock.OrReal(c),
		logger:   logger,
	}
}

// Allow reports whether one request from ip may proceed now.
func (l *Limiter) Allow(ip string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Cleanup drops buckets idle for longer than the configured idle period and
// returns how many were removed.
func (l *Limiter) Cleanup() int {
	cutoff := l.clock.Now().Add(-l.idle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked IPs.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// CleanupJob returns a background job that runs Cleanup every interval.
func (l *Limiter) CleanupJob(interval time.Duration) tasks.Job {
	return tasks.Job{
		Name:     "edge-limiter-cleanup",
		Interval: interval,
		Run: func(context.Context) error {
			if n := l.Cleanup(); n > 0 {
				l.logger.Debug("dropped idle edge limiter buckets", zap.Int("removed", n))
			}
			return nil
		},
	}
}

// Handler rejects requests from IPs that have exhausted their bucket.
func (l *Limiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := network.ClientIP(r)
		if !l.Allow(ip) {
			l.logger.Warn("edge rate limit exceeded",
				zap.String("ip", ip),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path))
			jsonutil.TooManyRequests(w, time.Second, "Too many requests. Please slow down.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
