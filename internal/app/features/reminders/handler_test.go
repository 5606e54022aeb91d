package reminders

import (
	"net/http"
	"testing"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/system/readcache"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"github.com/consistencygrid/consistencygrid/internal/testutil"
	"go.uber.org/zap"
)

func setup(t *testing.T) (http.Handler, *testutil.Services, testutil.TestUser) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	svc := testutil.NewServices(time.Date(2024, time.April, 2, 8, 0, 0, 0, time.UTC))
	h := NewHandler(db, svc.Cache, svc.Inv, zap.NewNop())
	return Routes(h, testutil.NewSessionManager(t), svc.Limiter, zap.NewNop()), svc, testutil.MemberUser()
}

func do(t *testing.T, router http.Handler, user testutil.TestUser, method, target string, body any) *testutil.ResponseRecorder {
	t.Helper()
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, testutil.NewJSONRequest(t, method, target, body, user))
	return rec
}

func TestCreateAndList(t *testing.T) {
	router, _, user := setup(t)

	rec := do(t, router, user, http.MethodPost, "/", map[string]any{"title": "Evening walk", "time": "19:30", "days": []int{5, 1, 1}})
	rec.AssertStatus(t, http.StatusCreated)
	var rem models.Reminder
	rec.DecodeJSON(t, &rem)
	if !rem.Enabled || len(rem.Days) != 2 || rem.Days[0] != 1 {
		t.Errorf("Create() = %+v, want enabled with days [1 5]", rem)
	}

	do(t, router, user, http.MethodPost, "/", map[string]any{"title": "Wake", "time": "06:45", "enabled": false}).
		AssertStatus(t, http.StatusCreated)

	rec = do(t, router, user, http.MethodGet, "/", nil)
	var out struct {
		Reminders []models.Reminder `json:"reminders"`
	}
	rec.DecodeJSON(t, &out)
	if len(out.Reminders) != 2 || out.Reminders[0].Title != "Wake" || out.Reminders[0].Enabled {
		t.Errorf("List() = %+v", out.Reminders)
	}
}

func TestCreate_Validation(t *testing.T) {
	router, _, user := setup(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{"time": "07:00"}},
		{"missing time", map[string]any{"title": "x"}},
		{"bad time", map[string]any{"title": "x", "time": "25:00"}},
		{"bad day", map[string]any{"title": "x", "time": "07:00", "days": []int{7}}},
		{"unknown habit", map[string]any{"title": "x", "time": "07:00", "habitId": testutil.MemberUser().ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			do(t, router, user, http.MethodPost, "/", tt.body).AssertStatus(t, http.StatusBadRequest)
		})
	}
}

func TestUpdateDelete_InvalidatesSettings(t *testing.T) {
	router, svc, user := setup(t)

	rec := do(t, router, user, http.MethodPost, "/", map[string]any{"title": "Read", "time": "21:00"})
	var rem models.Reminder
	rec.DecodeJSON(t, &rem)

	settingsKey := readcache.Key(readcache.KindSettings, user.ID)
	svc.Cache.Set(settingsKey, "stale", 0)

	rec = do(t, router, user, http.MethodPatch, "/"+rem.ID.Hex(), map[string]any{"enabled": false, "time": "21:15"})
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &rem)
	if rem.Enabled || rem.Time != "21:15" {
		t.Errorf("Update() = %+v", rem)
	}
	if _, ok := svc.Cache.Get(settingsKey); ok {
		t.Error("settings cache entry survived a reminder update")
	}

	do(t, router, user, http.MethodPatch, "/"+rem.ID.Hex(), map[string]any{"time": "9pm"}).AssertStatus(t, http.StatusBadRequest)

	other := testutil.MemberUser()
	do(t, router, other, http.MethodDelete, "/"+rem.ID.Hex(), nil).AssertStatus(t, http.StatusNotFound)
	do(t, router, user, http.MethodDelete, "/"+rem.ID.Hex(), nil).AssertStatus(t, http.StatusNoContent)
	do(t, router, user, http.MethodPatch, "/"+rem.ID.Hex(), map[string]any{"enabled": true}).AssertStatus(t, http.StatusNotFound)
}
