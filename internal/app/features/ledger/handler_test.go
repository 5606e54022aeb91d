package ledgerfeature

import (
	"net/http"
	"testing"
	"time"

	ledgerstore "github.com/consistencygrid/consistencygrid/internal/app/store/ledger"
	"github.com/consistencygrid/consistencygrid/internal/testutil"
	"go.uber.org/zap"
)

func TestLedgerRoutes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := ledgerstore.New(db)
	now := time.Date(2024, time.July, 2, 12, 0, 0, 0, time.UTC)
	for _, e := range []ledgerstore.Entry{
		{RequestID: "old-1", Path: "/api/payments/webhook", StatusCode: 500, ErrorClass: "internal", StartedAt: now.Add(-48 * time.Hour)},
		{RequestID: "ok-1", Path: "/api/payments/webhook", OrderRef: "cg_9", StatusCode: 200, StartedAt: now.Add(-2 * time.Hour)},
		{RequestID: "bad-1", Path: "/api/payments/webhook", OrderRef: "cg_9", StatusCode: 401, ErrorClass: "auth", StartedAt: now.Add(-time.Hour)},
	} {
		if err := store.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	h := NewHandler(db, zap.NewNop())
	h.now = func() time.Time { return now }
	router := Routes(h, testutil.NewSessionManager(t))
	admin := testutil.AdminUser()

	type listBody struct {
		Entries []ledgerstore.Entry `json:"entries"`
	}
	list := func(t *testing.T, target string) listBody {
		t.Helper()
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, testutil.NewAuthenticatedRequest(http.MethodGet, target, admin))
		rec.AssertStatus(t, http.StatusOK)
		var b listBody
		rec.DecodeJSON(t, &b)
		return b
	}

	t.Run("list filters", func(t *testing.T) {
		tests := []struct {
			target string
			first  string
			n      int
		}{
			{"/", "bad-1", 3},
			{"/?errors=1", "bad-1", 2},
			{"/?errors=true&since=24h", "bad-1", 1},
			{"/?order=cg_9", "bad-1", 2},
			{"/?since=2024-07-01", "bad-1", 2},
			{"/?limit=1&page=3", "old-1", 1},
		}
		for _, tt := range tests {
			b := list(t, tt.target)
			if len(b.Entries) != tt.n || b.Entries[0].RequestID != tt.first {
				t.Errorf("GET %s = %d entries starting %+v, want %d starting %s", tt.target, len(b.Entries), b.Entries, tt.n, tt.first)
			}
		}
	})

	t.Run("bad since", func(t *testing.T) {
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, testutil.NewAuthenticatedRequest(http.MethodGet, "/?since=yesterday", admin))
		rec.AssertStatus(t, http.StatusBadRequest)
	})

	t.Run("summary defaults to a day", func(t *testing.T) {
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, testutil.NewAuthenticatedRequest(http.MethodGet, "/summary", admin))
		rec.AssertStatus(t, http.StatusOK)

		var sum ledgerstore.Summary
		rec.DecodeJSON(t, &sum)
		if sum.Total != 2 || sum.Failed != 1 || sum.ByClass["auth"] != 1 {
			t.Errorf("summary = %+v", sum)
		}
	})

	t.Run("detail", func(t *testing.T) {
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, testutil.NewAuthenticatedRequest(http.MethodGet, "/ok-1", admin))
		rec.AssertStatus(t, http.StatusOK)
		rec.AssertContains(t, `"orderRef":"cg_9"`)
	})

	t.Run("missing", func(t *testing.T) {
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, testutil.NewAuthenticatedRequest(http.MethodGet, "/nope", admin))
		rec.AssertStatus(t, http.StatusNotFound)
	})

	t.Run("members forbidden", func(t *testing.T) {
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, testutil.NewAuthenticatedRequest(http.MethodGet, "/", testutil.MemberUser()))
		rec.AssertStatus(t, http.StatusForbidden)
	})

	t.Run("anonymous rejected", func(t *testing.T) {
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, testutil.NewRequest(http.MethodGet, "/"))
		rec.AssertStatus(t, http.StatusUnauthorized)
	})
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, time.July, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		raw      string
		fallback time.Duration
		want     time.Time
		ok       bool
	}{
		{"", 0, time.Time{}, true},
		{"", time.Hour, now.Add(-time.Hour), true},
		{"90m", 0, now.Add(-90 * time.Minute), true},
		{"2024-07-01", 0, time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-07-01T06:00:00Z", 0, time.Date(2024, time.July, 1, 6, 0, 0, 0, time.UTC), true},
		{"-5h", 0, time.Time{}, false},
		{"soon", 0, time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := parseSince(tt.raw, now, tt.fallback)
		if ok != tt.ok || (ok && !got.Equal(tt.want)) {
			t.Errorf("parseSince(%q) = %v, %v; want %v, %v", tt.raw, got, ok, tt.want, tt.ok)
		}
	}
}
