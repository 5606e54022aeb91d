// Package invalidate purges cached per-user aggregates after a write.
//
// Callers name a scope describing what changed; each scope maps to a fixed
// list of cache key kinds, and every registered Target is asked to purge
// those kinds for the user. Invalidation is fail-open: a target that errors
// or panics is logged and reported through the returned *Error, but the
// remaining targets still run and callers are expected to continue serving
// the request. Cached data is bounded by the cache TTL, so a missed purge
// costs at most one TTL of staleness.
package invalidate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/consistencygrid/consistencygrid/internal/app/system/metrics"
	"github.com/consistencygrid/consistencygrid/internal/app/system/readcache"
	"go.uber.org/zap"
)

// Scope names the category of data a write touched.
type Scope string

const (
	ScopeHabits    Scope = "habits"
	ScopeGoals     Scope = "goals"
	ScopeSettings  Scope = "settings"
	ScopeDashboard Scope = "dashboard"
	ScopeAll       Scope = "all"
)

var scopeKinds = map[Scope][]readcache.Kind{
	ScopeHabits:    {readcache.KindHabits, readcache.KindStreaks, readcache.KindDashboardStats},
	ScopeGoals:     {readcache.KindGoals, readcache.KindDashboardStats},
	ScopeSettings:  {readcache.KindSettings, readcache.KindReminders, readcache.KindDashboardStats},
	ScopeDashboard: {readcache.KindDashboardStats},
	ScopeAll:       readcache.AllKinds(),
}

// Kinds returns the cache kinds purged for scope. Unknown scopes report
// ok=false.
func Kinds(scope Scope) (kinds []readcache.Kind, ok bool) {
	kinds, ok = scopeKinds[scope]
	return kinds, ok
}

// Target is anything holding per-user derived data that must be dropped
// after a write.
type Target interface {
	Name() string
	Purge(ctx context.Context, userID string, kinds []readcache.Kind) error
}

// Error reports the targets that failed during one Invalidate call.
type Error struct {
	UserID string
	Scope  Scope
	Errs   []error
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalidate %s for user %s: %s", e.Scope, e.UserID, strings.Join(msgs, "; "))
}

func (e *Error) Unwrap() []error {
	return e.Errs
}

// ErrMissingUser is reported when Invalidate is called without a user id.
var ErrMissingUser = errors.New("invalidate: missing user id")

// Invalidator fans a scoped purge out to its targets.
type Invalidator struct {
	targets []Target
	logger  *zap.Logger
}

// New creates an Invalidator over targets.
func New(logger *zap.Logger, targets ...Target) *Invalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invalidator{targets: targets, logger: logger}
}

// Invalidate purges scope for userID on every target. It never panics. The
// returned error, if any, has already been logged; callers may discard it
// with `_ =` but should not fail the request on it.
func (inv *Invalidator) Invalidate(ctx context.Context, userID string, scope Scope) error {
	if userID == "" {
		inv.logger.Warn("cache invalidation skipped: no user id", zap.String("scope", string(scope)))
		metrics.Invalidation(string(scope), false)
		return &Error{Scope: scope, Errs: []error{ErrMissingUser}}
	}

	kinds, ok := Kinds(scope)
	if !ok {
		inv.logger.Warn("unknown invalidation scope; purging everything",
			zap.String("scope", string(scope)),
			zap.String("user_id", userID))
		kinds = scopeKinds[ScopeAll]
	}

	var errs []error
	for _, t := range inv.targets {
		if err := purgeSafely(ctx, t, userID, kinds); err != nil {
			inv.logger.Warn("cache invalidation failed",
				zap.String("target", t.Name()),
				zap.String("scope", string(scope)),
				zap.String("user_id", userID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}

	metrics.Invalidation(string(scope), len(errs) == 0)
	if len(errs) > 0 {
		return &Error{UserID: userID, Scope: scope, Errs: errs}
	}
	return nil
}

// purgeSafely converts a target panic into an error.
func purgeSafely(ctx context.Context, t Target, userID string, kinds []readcache.Kind) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Purge(ctx, userID, kinds)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Targets                                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

// CacheTarget purges the in-process read-through cache.
type CacheTarget struct {
	cache *readcache.Cache
}

// NewCacheTarget wraps c.
func NewCacheTarget(c *readcache.Cache) *CacheTarget {
	return &CacheTarget{cache: c}
}

// Name implements Target.
func (t *CacheTarget) Name() string { return "read-cache" }

// Purge implements Target.
func (t *CacheTarget) Purge(_ context.Context, userID string, kinds []readcache.Kind) error {
	t.cache.PurgeUser(userID, kinds...)
	return nil
}
