package ledger

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	ledgerstore "github.com/consistencygrid/consistencygrid/internal/app/store/ledger"
	"github.com/consistencygrid/consistencygrid/internal/app/system/clock"
	"github.com/consistencygrid/consistencygrid/internal/testutil"
	"go.uber.org/zap"
)

func syncConfig(store *ledgerstore.Store) Config {
	cfg := DefaultConfig(store, zap.NewNop())
	cfg.Async = false
	return cfg
}

func TestMiddleware_RecordsWebhookCall(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := ledgerstore.New(db)

	cfg := syncConfig(store)
	cfg.PreviewBytes = 10
	cfg.Clock = clock.NewFake(time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC))

	var seen string
	h := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = string(b)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Order not found"}`))
	}))

	payload := `{"orderRef":"cg_123","status":"paid"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", strings.NewReader(payload))
	req.Header.Set("Authorization", "Bearer gateway-secret")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != payload {
		t.Errorf("handler saw body %q, want it restored", seen)
	}
	requestID := rec.Header().Get("X-Request-ID")
	if requestID == "" {
		t.Fatal("X-Request-ID should be set")
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	e, err := store.GetByRequestID(ctx, requestID)
	if err != nil {
		t.Fatalf("GetByRequestID() error = %v", err)
	}
	if e.OrderRef != "cg_123" {
		t.Errorf("OrderRef = %q, want cg_123", e.OrderRef)
	}
	if e.StatusCode != http.StatusNotFound || e.ErrorClass != "not_found" || e.ResponseSize == 0 {
		t.Errorf("entry status %d class %q size %d", e.StatusCode, e.ErrorClass, e.ResponseSize)
	}
	if e.Headers["Authorization"] != "[redacted]" || e.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers = %v", e.Headers)
	}
	if e.BodySize != int64(len(payload)) || e.BodyPreview != payload[:10]+"..." || len(e.BodyHash) != 8 {
		t.Errorf("body capture = %d %q %q", e.BodySize, e.BodyPreview, e.BodyHash)
	}
}

func TestMiddleware_NonJSONBody(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := ledgerstore.New(db)

	h := Middleware(syncConfig(store))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/hook", strings.NewReader("not json")))

	ctx, cancel := testutil.TestContext()
	defer cancel()
	e, err := store.GetByRequestID(ctx, rec.Header().Get("X-Request-ID"))
	if err != nil {
		t.Fatalf("GetByRequestID() error = %v", err)
	}
	if e.OrderRef != "" || e.BodyPreview != "not json" || e.ErrorClass != "validation" {
		t.Errorf("entry = %+v", e)
	}
}

func TestMiddleware_OnlyErrors(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := ledgerstore.New(db)

	cfg := syncConfig(store)
	cfg.OnlyErrors = true

	status := http.StatusOK
	h := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/hook", nil))
	status = http.StatusInternalServerError
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/hook", nil))

	ctx, cancel := testutil.TestContext()
	defer cancel()
	all, err := store.Find(ctx, ledgerstore.Query{Path: "/hook"})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(all) != 1 || all[0].ErrorClass != "internal" {
		t.Errorf("entries = %+v, want only the failed call", all)
	}
}

func TestClassify(t *testing.T) {
	tests := map[int]string{
		200: "",
		204: "",
		400: "validation",
		401: "auth",
		403: "forbidden",
		404: "not_found",
		409: "conflict",
		418: "client_error",
		422: "validation",
		429: "rate_limited",
		503: "internal",
	}
	for code, want := range tests {
		if got := classify(code); got != want {
			t.Errorf("classify(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestCapture_PreviewKeepsRunesWhole(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", strings.NewReader(`{"note":"café ☕ paid"}`))

	// A 13-byte cut lands inside the two-byte "é".
	b := capture(r, 13)
	if !utf8.ValidString(b.preview) {
		t.Fatalf("preview %q is not valid UTF-8", b.preview)
	}
	if b.preview != `{"note":"caf...` {
		t.Errorf("preview = %q", b.preview)
	}

	rest, _ := io.ReadAll(r.Body)
	if string(rest) != `{"note":"café ☕ paid"}` {
		t.Errorf("body after capture = %q", rest)
	}
}

func TestCutRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abc", 2, "ab"},
		{"é", 1, ""},
		{"aé", 2, "a"},
		{"a☕b", 3, "a"},
		{"a☕b", 4, "a☕"},
	}
	for _, tt := range tests {
		if got := cutRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("cutRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
