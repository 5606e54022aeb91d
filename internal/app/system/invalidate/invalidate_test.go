package invalidate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/system/clock"
	"github.com/consistencygrid/consistencygrid/internal/app/system/jsonutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/readcache"
	"go.uber.org/zap"
)

type failingTarget struct{ err error }

func (f failingTarget) Name() string { return "failing" }
func (f failingTarget) Purge(context.Context, string, []readcache.Kind) error {
	return f.err
}

type panickingTarget struct{}

func (panickingTarget) Name() string { return "panicking" }
func (panickingTarget) Purge(context.Context, string, []readcache.Kind) error {
	panic("redis exploded")
}

type recordingTarget struct {
	calls []readcache.Kind
}

func (r *recordingTarget) Name() string { return "recording" }
func (r *recordingTarget) Purge(_ context.Context, _ string, kinds []readcache.Kind) error {
	r.calls = append(r.calls, kinds...)
	return nil
}

func seed(c *readcache.Cache, user string) {
	for _, k := range readcache.AllKinds() {
		c.Set(readcache.Key(k, user), 1, 0)
	}
}

func TestKinds(t *testing.T) {
	tests := []struct {
		scope Scope
		want  []readcache.Kind
	}{
		{ScopeHabits, []readcache.Kind{readcache.KindHabits, readcache.KindStreaks, readcache.KindDashboardStats}},
		{ScopeGoals, []readcache.Kind{readcache.KindGoals, readcache.KindDashboardStats}},
		{ScopeSettings, []readcache.Kind{readcache.KindSettings, readcache.KindReminders, readcache.KindDashboardStats}},
		{ScopeDashboard, []readcache.Kind{readcache.KindDashboardStats}},
		{ScopeAll, readcache.AllKinds()},
	}
	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			got, ok := Kinds(tt.scope)
			if !ok {
				t.Fatalf("Kinds(%q) not found", tt.scope)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Kinds(%q) = %v, want %v", tt.scope, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Kinds(%q)[%d] = %q, want %q", tt.scope, i, got[i], tt.want[i])
				}
			}
		})
	}

	if _, ok := Kinds("bogus"); ok {
		t.Error("Kinds(bogus) should not be found")
	}
}

func TestInvalidate_HabitsPurgesStreaksAndDashboard(t *testing.T) {
	cache := readcache.New(readcache.Config{}, zap.NewNop())
	seed(cache, "u1")
	seed(cache, "u2")
	inv := New(zap.NewNop(), NewCacheTarget(cache))

	if err := inv.Invalidate(context.Background(), "u1", ScopeHabits); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	gone := []readcache.Kind{readcache.KindHabits, readcache.KindStreaks, readcache.KindDashboardStats}
	for _, k := range gone {
		if _, ok := cache.Get(readcache.Key(k, "u1")); ok {
			t.Errorf("%s for u1 should be purged", k)
		}
	}
	if _, ok := cache.Get(readcache.Key(readcache.KindGoals, "u1")); !ok {
		t.Error("goals for u1 should survive a habits invalidation")
	}
	for _, k := range readcache.AllKinds() {
		if _, ok := cache.Get(readcache.Key(k, "u2")); !ok {
			t.Errorf("%s for u2 should be untouched", k)
		}
	}
}

func TestInvalidate_UnknownScopePurgesAll(t *testing.T) {
	cache := readcache.New(readcache.Config{}, zap.NewNop())
	seed(cache, "u1")
	inv := New(zap.NewNop(), NewCacheTarget(cache))

	if err := inv.Invalidate(context.Background(), "u1", Scope("mystery")); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if cache.Len() != 0 {
		t.Errorf("Len = %d, want 0", cache.Len())
	}
}

func TestInvalidate_FailOpen(t *testing.T) {
	cache := readcache.New(readcache.Config{}, zap.NewNop())
	seed(cache, "u1")
	rec := &recordingTarget{}
	boom := errors.New("downstream unavailable")

	inv := New(zap.NewNop(),
		failingTarget{err: boom},
		panickingTarget{},
		NewCacheTarget(cache),
		rec,
	)

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Invalidate panicked: %v", r)
			}
		}()
		err = inv.Invalidate(context.Background(), "u1", ScopeDashboard)
	}()

	var ierr *Error
	if !errors.As(err, &ierr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if len(ierr.Errs) != 2 {
		t.Errorf("Errs = %v, want 2 failures", ierr.Errs)
	}
	if !errors.Is(err, boom) {
		t.Error("error chain should include the target's error")
	}

	// Targets after the failures still ran.
	if _, ok := cache.Get(readcache.Key(readcache.KindDashboardStats, "u1")); ok {
		t.Error("cache target should still have purged dashboard stats")
	}
	if len(rec.calls) != 1 || rec.calls[0] != readcache.KindDashboardStats {
		t.Errorf("recording target calls = %v", rec.calls)
	}
}

func TestInvalidate_MissingUser(t *testing.T) {
	inv := New(zap.NewNop())
	err := inv.Invalidate(context.Background(), "", ScopeAll)
	if !errors.Is(err, ErrMissingUser) {
		t.Errorf("err = %v, want ErrMissingUser", err)
	}
}

// A read that started before a write can refill the cache with the old value
// after the write's purge. The validator must still follow what is served, so
// once the entry expires the client gets the new body instead of a 304.
func TestInvalidate_StaleRefillIsBoundedByTTL(t *testing.T) {
	fc := clock.NewFake(time.Date(2024, time.June, 15, 9, 0, 0, 0, time.UTC))
	cache := readcache.New(readcache.Config{TTL: 5 * time.Minute, Clock: fc}, zap.NewNop())
	inv := New(zap.NewNop(), NewCacheTarget(cache))
	key := readcache.Key(readcache.KindHabits, "u1")

	stored := "old"
	list := func(ifNoneMatch string, compute func(context.Context) (string, error)) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/habits", nil)
		if ifNoneMatch != "" {
			req.Header.Set("If-None-Match", ifNoneMatch)
		}
		rec := httptest.NewRecorder()
		v, err := readcache.GetOrCompute(context.Background(), cache, key, compute)
		if err != nil {
			t.Fatalf("GetOrCompute() error = %v", err)
		}
		jsonutil.Tagged(rec, req, map[string]string{"value": v})
		return rec
	}
	read := func(context.Context) (string, error) { return stored, nil }

	// The write and its invalidation land while the first read is computing.
	first := list("", func(ctx context.Context) (string, error) {
		v, _ := read(ctx)
		stored = "new"
		_ = inv.Invalidate(ctx, "u1", ScopeHabits)
		return v, nil
	})
	etag := first.Header().Get("ETag")

	// Within one TTL the old copy may still be confirmed.
	if rec := list(etag, read); rec.Code != http.StatusNotModified && !strings.Contains(rec.Body.String(), "new") {
		t.Fatalf("within TTL: status = %d body = %q", rec.Code, rec.Body.String())
	}

	fc.Advance(10 * time.Minute)
	rec := list(etag, read)
	if rec.Code != http.StatusOK {
		t.Fatalf("after TTL: status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"new"`) {
		t.Errorf("after TTL: body = %q, want the new value", rec.Body.String())
	}
	if rec.Header().Get("ETag") == etag {
		t.Error("after TTL: ETag unchanged")
	}
}
