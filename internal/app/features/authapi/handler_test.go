package authapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/store/loginattempts"
	"github.com/consistencygrid/consistencygrid/internal/app/store/sessions"
	userstore "github.com/consistencygrid/consistencygrid/internal/app/store/users"
	"github.com/consistencygrid/consistencygrid/internal/app/system/authutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/clock"
	"github.com/consistencygrid/consistencygrid/internal/app/system/edgelimit"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"github.com/consistencygrid/consistencygrid/internal/testutil"
	"github.com/gorilla/csrf"
	"golang.org/x/crypto/bcrypt"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var now = time.Date(2024, time.May, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	db       *mongo.Database
	svc      *testutil.Services
	attempts *loginattempts.Store
	router   http.Handler
}

func newFixture(t *testing.T, edge *edgelimit.Limiter) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	svc := testutil.NewServices(now)
	sm := testutil.NewSessionManager(t)
	sm.SetUserFetcher(userstore.NewFetcher(db, zap.NewNop()))

	attempts := loginattempts.New(db, 3, 15*time.Minute, 30*time.Minute, svc.Clock)
	h := NewHandler(db, sm, attempts, svc.Inv, time.Hour, svc.Clock, zap.NewNop())

	return &fixture{
		db:       db,
		svc:      svc,
		attempts: attempts,
		router:   sm.LoadSessionUser(Routes(h, sm, edge)),
	}
}

// do sends a JSON request carrying cookies and returns the response.
func (f *fixture) do(t *testing.T, method, target string, body any, cookies []*http.Cookie) *testutil.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		req = httptest.NewRequest(method, target, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "203.0.113.7:5555"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := testutil.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) seedUser(t *testing.T, email, password string) models.User {
	t.Helper()
	hash, err := authutil.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ctx, cancel := testutil.TestContext()
	defer cancel()
	u, err := userstore.New(f.db).Create(ctx, models.User{Name: "Seeded", Email: email, PasswordHash: hash, Timezone: "Europe/Berlin"})
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	return u
}

func TestSignup(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/signup", map[string]any{
		"name":     "Noor",
		"email":    "Noor@Example.com",
		"password": "morning-run-42",
		"timezone": "Asia/Kolkata",
	}, nil)
	rec.AssertStatus(t, http.StatusCreated)

	var me Me
	rec.DecodeJSON(t, &me)
	if me.Email != "noor@example.com" || me.Timezone != "Asia/Kolkata" || me.Plan != models.PlanFree {
		t.Errorf("signup = %+v", me)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("signup should set a session cookie")
	}

	meRec := f.do(t, http.MethodGet, "/me", nil, cookies)
	meRec.AssertStatus(t, http.StatusOK)
	var got Me
	meRec.DecodeJSON(t, &got)
	if got.ID != me.ID {
		t.Errorf("me = %+v, want id %s", got, me.ID)
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	uid, _ := primitive.ObjectIDFromHex(got.ID)
	open, err := sessions.New(f.db, f.svc.Clock).ListOpen(ctx, uid)
	if err != nil || len(open) != 1 {
		t.Fatalf("ListOpen() = %v, %v; want one session", open, err)
	}
	if open[0].IPAddress != "203.0.113.7" {
		t.Errorf("IPAddress = %q", open[0].IPAddress)
	}
	if !open[0].ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", open[0].ExpiresAt, now.Add(time.Hour))
	}
}

func TestSignup_Rejections(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUser(t, "taken@example.com", "whatever-123")

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"missing email", map[string]any{"password": "long-enough-1"}, http.StatusBadRequest},
		{"bad email", map[string]any{"email": "nope", "password": "long-enough-1"}, http.StatusBadRequest},
		{"weak password", map[string]any{"email": "a@example.com", "password": "password1"}, http.StatusBadRequest},
		{"password has email name", map[string]any{"email": "gardener@example.com", "password": "gardener-2024"}, http.StatusBadRequest},
		{"bad timezone", map[string]any{"email": "b@example.com", "password": "long-enough-1", "timezone": "Moon/Base"}, http.StatusBadRequest},
		{"duplicate", map[string]any{"email": "TAKEN@example.com", "password": "long-enough-1"}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.do(t, http.MethodPost, "/signup", tt.body, nil).AssertStatus(t, tt.want)
		})
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t, nil)
	u := f.seedUser(t, "walker@example.com", "ten-thousand-steps")

	rec := f.do(t, http.MethodPost, "/login", map[string]any{"email": "WALKER@example.com", "password": "ten-thousand-steps"}, nil)
	rec.AssertStatus(t, http.StatusOK)
	var me Me
	rec.DecodeJSON(t, &me)
	if me.ID != u.ID.Hex() || me.Timezone != "Europe/Berlin" {
		t.Errorf("login = %+v", me)
	}

	listRec := f.do(t, http.MethodGet, "/sessions", nil, rec.Result().Cookies())
	listRec.AssertStatus(t, http.StatusOK)
	var out struct {
		Sessions []struct {
			Current bool `json:"current"`
		} `json:"sessions"`
	}
	listRec.DecodeJSON(t, &out)
	if len(out.Sessions) != 1 || !out.Sessions[0].Current {
		t.Errorf("sessions = %+v, want the current one", out.Sessions)
	}
}

func TestLogin_FailuresLockOut(t *testing.T) {
	f := newFixture(t, nil)
	f.seedUser(t, "locked@example.com", "right-password-1")

	bad := map[string]any{"email": "locked@example.com", "password": "wrong-password-1"}
	f.do(t, http.MethodPost, "/login", bad, nil).AssertStatus(t, http.StatusUnauthorized)
	f.do(t, http.MethodPost, "/login", bad, nil).AssertStatus(t, http.StatusUnauthorized)

	rec := f.do(t, http.MethodPost, "/login", bad, nil)
	rec.AssertStatus(t, http.StatusTooManyRequests)
	rec.AssertHeader(t, "Retry-After", "1800")

	// The right password is refused while locked.
	good := map[string]any{"email": "locked@example.com", "password": "right-password-1"}
	f.do(t, http.MethodPost, "/login", good, nil).AssertStatus(t, http.StatusTooManyRequests)

	f.svc.Clock.Advance(31 * time.Minute)
	f.do(t, http.MethodPost, "/login", good, nil).AssertStatus(t, http.StatusOK)

	ctx, cancel := testutil.TestContext()
	defer cancel()
	if a, _ := f.attempts.GetAttempt(ctx, "locked@example.com"); a != nil {
		t.Errorf("attempts after success = %+v, want cleared", a)
	}
}

func TestLogin_UnknownEmailCounts(t *testing.T) {
	f := newFixture(t, nil)

	body := map[string]any{"email": "ghost@example.com", "password": "anything-at-all"}
	f.do(t, http.MethodPost, "/login", body, nil).AssertStatus(t, http.StatusUnauthorized)

	ctx, cancel := testutil.TestContext()
	defer cancel()
	a, _ := f.attempts.GetAttempt(ctx, "ghost@example.com")
	if a == nil || a.AttemptCount != 1 {
		t.Errorf("attempt = %+v, want one failure recorded", a)
	}
}

func TestLogin_UpgradesWeakHash(t *testing.T) {
	f := newFixture(t, nil)
	u := f.seedUser(t, "legacy@example.com", "old-cost-password")

	weak, _ := bcrypt.GenerateFromPassword([]byte("old-cost-password"), bcrypt.MinCost)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	users := userstore.New(f.db)
	if err := users.UpdatePassword(ctx, u.ID, string(weak)); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}

	body := map[string]any{"email": "legacy@example.com", "password": "old-cost-password"}
	f.do(t, http.MethodPost, "/login", body, nil).AssertStatus(t, http.StatusOK)

	got, _ := users.GetByID(ctx, u.ID)
	if authutil.NeedsRehash(got.PasswordHash) || !authutil.CheckPassword("old-cost-password", got.PasswordHash) {
		t.Error("login should replace the low-cost hash with a current one")
	}
}

func TestLogin_DisabledAccount(t *testing.T) {
	f := newFixture(t, nil)
	u := f.seedUser(t, "off@example.com", "right-password-1")

	ctx, cancel := testutil.TestContext()
	defer cancel()
	_, _ = f.db.Collection("users").UpdateOne(ctx, bson.M{"_id": u.ID}, bson.M{"$set": bson.M{"status": "disabled"}})

	body := map[string]any{"email": "off@example.com", "password": "right-password-1"}
	f.do(t, http.MethodPost, "/login", body, nil).AssertStatus(t, http.StatusForbidden)
}

func TestLogout(t *testing.T) {
	f := newFixture(t, nil)
	u := f.seedUser(t, "bye@example.com", "see-you-later")

	rec := f.do(t, http.MethodPost, "/login", map[string]any{"email": "bye@example.com", "password": "see-you-later"}, nil)
	rec.AssertStatus(t, http.StatusOK)
	cookies := rec.Result().Cookies()

	f.do(t, http.MethodPost, "/logout", nil, cookies).AssertStatus(t, http.StatusNoContent)

	ctx, cancel := testutil.TestContext()
	defer cancel()
	open, err := sessions.New(f.db, f.svc.Clock).ListOpen(ctx, u.ID)
	if err != nil || len(open) != 0 {
		t.Errorf("ListOpen() after logout = %v, %v; want none", open, err)
	}
}

func TestRequiresSession(t *testing.T) {
	f := newFixture(t, nil)
	for _, target := range []string{"/me", "/sessions"} {
		f.do(t, http.MethodGet, target, nil, nil).AssertStatus(t, http.StatusUnauthorized)
	}
	f.do(t, http.MethodPost, "/logout", nil, nil).AssertStatus(t, http.StatusUnauthorized)
}

func TestEdgeLimiter(t *testing.T) {
	edge := edgelimit.New(1, 2, time.Minute, clock.NewFake(now), zap.NewNop())
	f := newFixture(t, edge)

	body := map[string]any{"email": "nobody@example.com", "password": "anything-at-all"}
	f.do(t, http.MethodPost, "/login", body, nil).AssertStatus(t, http.StatusUnauthorized)
	f.do(t, http.MethodPost, "/login", body, nil).AssertStatus(t, http.StatusUnauthorized)
	f.do(t, http.MethodPost, "/login", body, nil).AssertStatus(t, http.StatusTooManyRequests)
}

func TestCSRFToken(t *testing.T) {
	protect := csrf.Protect([]byte(testutil.SessionKey), csrf.Secure(false))
	mux := http.NewServeMux()
	mux.HandleFunc("/api/csrf", CSRFToken)
	mux.HandleFunc("/api/habits", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusCreated) })
	h := protect(mux)

	rec := testutil.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/csrf", nil))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertHeader(t, "Cache-Control", "no-store")

	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	rec.DecodeJSON(t, &body)
	if body.CSRFToken == "" {
		t.Fatal("csrfToken is empty")
	}

	// Unsafe requests without the token are refused.
	rec = testutil.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/habits", nil))
	rec.AssertStatus(t, http.StatusForbidden)
}
