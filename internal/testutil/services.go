package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/app/system/clock"
	"github.com/consistencygrid/consistencygrid/internal/app/system/invalidate"
	"github.com/consistencygrid/consistencygrid/internal/app/system/ratelimit"
	"github.com/consistencygrid/consistencygrid/internal/app/system/readcache"
	"go.uber.org/zap"
)

// SessionKey is a 32-character signing key for tests.
const SessionKey = "test-session-key-32-characters!!"

// NewSessionManager returns a development-mode session manager.
func NewSessionManager(t testing.TB) *auth.SessionManager {
	t.Helper()
	sm, err := auth.NewSessionManager(SessionKey, "", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	return sm
}

// Services bundles the in-process services handlers depend on, wired the way
// bootstrap wires them but on a fake clock.
type Services struct {
	Clock   *clock.Fake
	Cache   *readcache.Cache
	Inv     *invalidate.Invalidator
	Limiter *ratelimit.Limiter
}

// NewServices builds Services starting at now. Extra invalidation targets
// are appended after the cache target.
func NewServices(now time.Time, extra ...invalidate.Target) *Services {
	fc := clock.NewFake(now)
	cache := readcache.New(readcache.Config{TTL: time.Minute, Clock: fc}, zap.NewNop())
	targets := append([]invalidate.Target{invalidate.NewCacheTarget(cache)}, extra...)
	limiter := ratelimit.New(ratelimit.NewMemoryStore(time.Hour), ratelimit.Config{Clock: fc}, zap.NewNop())
	return &Services{
		Clock:   fc,
		Cache:   cache,
		Inv:     invalidate.New(zap.NewNop(), targets...),
		Limiter: limiter,
	}
}

// FailingTarget is an invalidation target whose Purge always fails.
type FailingTarget struct {
	Calls int
}

// Name implements invalidate.Target.
func (f *FailingTarget) Name() string { return "failing" }

// Purge implements invalidate.Target.
func (f *FailingTarget) Purge(context.Context, string, []readcache.Kind) error {
	f.Calls++
	return errors.New("purge failed")
}

// LimitPolicies replaces the limiter with one using policies on the same
// fake clock.
func (s *Services) LimitPolicies(policies map[string]ratelimit.Policy) {
	s.Limiter = ratelimit.New(ratelimit.NewMemoryStore(time.Hour), ratelimit.Config{Policies: policies, Clock: s.Clock}, zap.NewNop())
}
