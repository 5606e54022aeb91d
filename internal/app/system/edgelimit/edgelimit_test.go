package edgelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/system/clock"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, time.June, 15, 9, 0, 0, 0, time.UTC)

func TestAllow_BurstThenRefill(t *testing.T) {
	fc := clock.NewFake(t0)
	l := New(2, 3, time.Minute, fc, zap.NewNop())

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("burst request %d rejected", i)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("request beyond burst allowed")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("other IP should have its own bucket")
	}

	// 2 tokens/s: half a second refills one.
	fc.Advance(500 * time.Millisecond)
	if !l.Allow("10.0.0.1") {
		t.Error("request after refill rejected")
	}
	if l.Allow("10.0.0.1") {
		t.Error("only one token should have refilled")
	}
}

func TestCleanup(t *testing.T) {
	fc := clock.NewFake(t0)
	l := New(10, 10, time.Minute, fc, zap.NewNop())

	l.Allow("a")
	fc.Advance(30 * time.Second)
	l.Allow("b")

	fc.Advance(45 * time.Second)
	if n := l.Cleanup(); n != 1 {
		t.Errorf("Cleanup() removed %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Errorf("Len() = %d, want 1", l.Len())
	}

	job := l.CleanupJob(time.Minute)
	fc.Advance(time.Hour)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("job.Run() error = %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("Len() after job = %d, want 0", l.Len())
	}
}

func TestHandler(t *testing.T) {
	l := New(1, 1, time.Minute, clock.NewFake(t0), zap.NewNop())
	h := l.Handler(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:1234"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}
