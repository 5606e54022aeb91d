package settings

import (
	"context"
	"net/http"
	"testing"
	"time"

	userstore "github.com/consistencygrid/consistencygrid/internal/app/store/users"
	"github.com/consistencygrid/consistencygrid/internal/app/system/ratelimit"
	"github.com/consistencygrid/consistencygrid/internal/app/system/readcache"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"github.com/consistencygrid/consistencygrid/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type fixture struct {
	db     *mongo.Database
	svc    *testutil.Services
	router http.Handler
	user   testutil.TestUser
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	svc := testutil.NewServices(time.Date(2024, time.July, 4, 10, 0, 0, 0, time.UTC))
	svc.LimitPolicies(map[string]ratelimit.Policy{
		ratelimit.ActionSettingsSave: {Max: 3, Window: time.Minute},
	})

	ctx, cancel := testutil.TestContext()
	defer cancel()
	u, err := userstore.New(db).Create(ctx, models.User{Name: "Settings", Email: "settings@example.com"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	user := testutil.MemberUser()
	user.ID = u.ID.Hex()

	h := NewHandler(db, svc.Cache, svc.Inv, zap.NewNop())
	return &fixture{
		db:     db,
		svc:    svc,
		router: Routes(h, testutil.NewSessionManager(t), svc.Limiter, zap.NewNop()),
		user:   user,
	}
}

func (f *fixture) do(t *testing.T, method string, body any) *testutil.ResponseRecorder {
	t.Helper()
	rec := testutil.NewRecorder()
	f.router.ServeHTTP(rec, testutil.NewJSONRequest(t, method, "/", body, f.user))
	return rec
}

func TestShow_Defaults(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, nil)
	rec.AssertStatus(t, http.StatusOK)
	var v View
	rec.DecodeJSON(t, &v)
	def := models.DefaultWallpaperSettings()
	if v.Timezone != "UTC" || v.Wallpaper.Theme != def.Theme || v.Wallpaper.Resolution != def.Resolution {
		t.Errorf("show() = %+v", v)
	}
}

func TestTimezones(t *testing.T) {
	f := newFixture(t)

	rec := testutil.NewRecorder()
	f.router.ServeHTTP(rec, testutil.NewAuthenticatedRequest(http.MethodGet, "/timezones", f.user))
	rec.AssertStatus(t, http.StatusOK)

	var body struct {
		Groups []struct {
			Region string `json:"region"`
			Zones  []struct {
				ID string `json:"id"`
			} `json:"zones"`
		} `json:"groups"`
	}
	rec.DecodeJSON(t, &body)
	found := false
	for _, g := range body.Groups {
		for _, z := range g.Zones {
			if z.ID == "Europe/London" && g.Region == "Europe" {
				found = true
			}
		}
	}
	if !found {
		t.Errorf("Europe/London missing from %+v", body.Groups)
	}
}

func TestUpdate(t *testing.T) {
	f := newFixture(t)

	streakKey := readcache.Key(readcache.KindStreaks, f.user.ID)
	f.svc.Cache.Set(streakKey, "stale", 0)
	etag := f.do(t, http.MethodGet, nil).Header().Get("ETag")

	ws := models.DefaultWallpaperSettings()
	ws.Theme = models.ThemeLight
	ws.Quote = "<b>Keep</b> going"
	rec := f.do(t, http.MethodPut, map[string]any{"timezone": "America/Chicago", "wallpaper": ws})
	rec.AssertStatus(t, http.StatusOK)

	var v View
	rec.DecodeJSON(t, &v)
	if v.Timezone != "America/Chicago" || v.TimezoneLabel != "Central Time (US & Canada)" || v.Wallpaper.Theme != models.ThemeLight || v.Wallpaper.Quote != "Keep going" {
		t.Errorf("update() = %+v", v)
	}

	ctx := context.Background()
	u, err := userstore.New(f.db).GetByID(ctx, f.user.OID())
	if err != nil || u.Timezone != "America/Chicago" {
		t.Errorf("stored timezone = %v, %v", u, err)
	}
	if _, ok := f.svc.Cache.Get(streakKey); ok {
		t.Error("a timezone change should purge streaks")
	}
	if f.do(t, http.MethodGet, nil).Header().Get("ETag") == etag {
		t.Error("settings ETag should change after a save")
	}
}

func TestUpdate_ValidatesBeforeWriting(t *testing.T) {
	f := newFixture(t)

	bad := models.DefaultWallpaperSettings()
	bad.Resolution = "50x50"

	tests := []struct {
		name string
		body map[string]any
	}{
		{"empty", map[string]any{}},
		{"bad timezone", map[string]any{"timezone": "Atlantis/Central"}},
		{"bad wallpaper with good timezone", map[string]any{"timezone": "Europe/Berlin", "wallpaper": bad}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.do(t, http.MethodPut, tt.body).AssertStatus(t, http.StatusBadRequest)
		})
	}

	u, _ := userstore.New(f.db).GetByID(context.Background(), f.user.OID())
	if u.Timezone != "UTC" {
		t.Errorf("timezone = %q, want unchanged after a rejected save", u.Timezone)
	}
}

func TestUpdate_RateLimited(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		f.do(t, http.MethodPut, map[string]any{"timezone": "UTC"}).AssertStatus(t, http.StatusOK)
	}
	rec := f.do(t, http.MethodPut, map[string]any{"timezone": "Asia/Tokyo"})
	rec.AssertStatus(t, http.StatusTooManyRequests)

	u, _ := userstore.New(f.db).GetByID(context.Background(), f.user.OID())
	if u.Timezone != "UTC" {
		t.Errorf("timezone = %q, rejected save must not write", u.Timezone)
	}

	// Reads are not limited.
	f.do(t, http.MethodGet, nil).AssertStatus(t, http.StatusOK)
}
