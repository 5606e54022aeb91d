// Package ratelimit throttles state-changing requests with a sliding-window
// counter per (identifier, action) pair.
//
// A request made at time t counts against its pair while t > now-window.
// Rejected requests are not recorded, so a client that keeps hammering a
// full window is released as soon as its oldest counted request ages out.
//
// Two backends are provided: MemoryStore for a single instance and
// RedisStore for deployments that run several instances behind a load
// balancer. The Limiter owns the clock, policy table and pruning lifecycle.
package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/system/clock"
	"github.com/consistencygrid/consistencygrid/internal/app/system/metrics"
	"github.com/consistencygrid/consistencygrid/internal/app/system/tasks"
	"go.uber.org/zap"
)

// Actions with their own budgets.
const (
	ActionHabitToggle  = "habit-toggle"
	ActionGoalCreate   = "goal-create"
	ActionSettingsSave = "settings-save"
	ActionDefault      = "default"
)

// Policy is a budget of Max requests per Window.
type Policy struct {
	Max    int
	Window time.Duration
}

// DefaultPolicies returns the stock per-action budgets.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		ActionHabitToggle:  {Max: 200, Window: time.Minute},
		ActionGoalCreate:   {Max: 50, Window: time.Minute},
		ActionSettingsSave: {Max: 20, Window: time.Minute},
		ActionDefault:      {Max: 60, Window: time.Minute},
	}
}

// Result is the outcome of one check.
type Result struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"resetAt"`
	RetryAfter time.Duration `json:"-"`
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds (at least 1) for
// rejected results, and returns 0 for allowed ones.
func (r Result) RetryAfterSeconds() int {
	if r.Allowed {
		return 0
	}
	s := int(math.Ceil(r.RetryAfter.Seconds()))
	if s < 1 {
		s = 1
	}
	return s
}

// Store is a sliding-window backend.
type Store interface {
	// Hit evaluates and, when allowed, records a request for key at now.
	Hit(ctx context.Context, key string, max int, window time.Duration, now time.Time) (Result, error)
	// Prune discards state that can no longer affect a decision and returns
	// how many keys were dropped.
	Prune(ctx context.Context, now time.Time) (int, error)
}

// ErrInvalidPolicy is returned for non-positive limits or windows.
var ErrInvalidPolicy = errors.New("ratelimit: max and window must be positive")

// Config configures a Limiter. Zero values select defaults.
type Config struct {
	Policies      map[string]Policy // merged over DefaultPolicies
	PruneInterval time.Duration     // 0 disables background pruning
	Clock         clock.Clock
}

// Limiter applies per-action policies against a Store.
type Limiter struct {
	store         Store
	policies      map[string]Policy
	pruneInterval time.Duration
	clock         clock.Clock
	logger        *zap.Logger
	runner        *tasks.Runner
}

// New creates a Limiter over store.
func New(store Store, cfg Config, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	policies := DefaultPolicies()
	for action, p := range cfg.Policies {
		if p.Max > 0 && p.Window > 0 {
			policies[action] = p
		}
	}
	return &Limiter{
		store:         store,
		policies:      policies,
		pruneInterval: cfg.PruneInterval,
		clock:         clock.OrReal(cfg.Clock),
		logger:        logger,
	}
}

// Policy returns the budget for action, falling back to the default policy.
func (l *Limiter) Policy(action string) Policy {
	if p, ok := l.policies[action]; ok {
		return p
	}
	return l.policies[ActionDefault]
}

// Check evaluates one request by identifier for action against an explicit
// budget.
func (l *Limiter) Check(ctx context.Context, identifier, action string, max int, window time.Duration) (Result, error) {
	if max <= 0 || window <= 0 {
		return Result{}, ErrInvalidPolicy
	}
	res, err := l.store.Hit(ctx, identifier+":"+action, max, window, l.clock.Now())
	if err != nil {
		return Result{}, err
	}
	metrics.RateLimitDecision(action, res.Allowed)
	return res, nil
}

// CheckAction is Check using the registered policy for action.
func (l *Limiter) CheckAction(ctx context.Context, identifier, action string) (Result, error) {
	p := l.Policy(action)
	return l.Check(ctx, identifier, action, p.Max, p.Window)
}

// Prune runs one pruning pass.
func (l *Limiter) Prune(ctx context.Context) (int, error) {
	return l.store.Prune(ctx, l.clock.Now())
}

// Start launches background pruning if an interval is configured.
func (l *Limiter) Start() {
	if l.pruneInterval <= 0 || l.runner != nil {
		return
	}
	l.runner = tasks.New(l.logger)
	l.runner.Register(tasks.Job{
		Name:     "ratelimit-prune",
		Interval: l.pruneInterval,
		Run: func(ctx context.Context) error {
			n, err := l.Prune(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				l.logger.Debug("pruned idle rate limit windows", zap.Int("removed", n))
			}
			return nil
		},
	})
	l.runner.Start()
}

// Stop halts background pruning, waiting at most until ctx is done.
func (l *Limiter) Stop(ctx context.Context) error {
	if l.runner == nil {
		return nil
	}
	err := l.runner.Stop(ctx)
	l.runner = nil
	return err
}
