// internal/app/features/settings/settings.go

// Package settings serves the user's wallpaper preferences and time zone.
//
// Endpoints (mounted at /api/settings, session required):
//   - GET / - Current settings
//   - PUT / - Save settings (rate limited as settings-save)
//   - GET /timezones - Suggested zones grouped by region
package settings

import (
	"context"
	"net/http"

	userstore "github.com/consistencygrid/consistencygrid/internal/app/store/users"
	wallpaperstore "github.com/consistencygrid/consistencygrid/internal/app/store/wallpaper"
	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
	"github.com/consistencygrid/consistencygrid/internal/app/system/htmlsanitize"
	"github.com/consistencygrid/consistencygrid/internal/app/system/invalidate"
	"github.com/consistencygrid/consistencygrid/internal/app/system/jsonutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/ratelimit"
	"github.com/consistencygrid/consistencygrid/internal/app/system/readcache"
	"github.com/consistencygrid/consistencygrid/internal/app/system/timeouts"
	"github.com/consistencygrid/consistencygrid/internal/app/system/timezones"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler provides the settings endpoints.
type Handler struct {
	wallpaper *wallpaperstore.Store
	users     *userstore.Store
	cache     *readcache.Cache
	inv       *invalidate.Invalidator
	logger    *zap.Logger
}

// NewHandler creates a new settings Handler.
func NewHandler(
	db *mongo.Database,
	cache *readcache.Cache,
	inv *invalidate.Invalidator,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		wallpaper: wallpaperstore.New(db),
		users:     userstore.New(db),
		cache:     cache,
		inv:       inv,
		logger:    logger,
	}
}

// Routes returns the settings router.
func Routes(h *Handler, sm *auth.SessionManager, limiter *ratelimit.Limiter, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Get("/", h.show)
	r.Get("/timezones", h.zones)
	r.With(ratelimit.Middleware(limiter, ratelimit.ActionSettingsSave, logger)).Put("/", h.update)
	return r
}

// View is the settings response body.
type View struct {
	Timezone      string                   `json:"timezone"`
	TimezoneLabel string                   `json:"timezoneLabel"`
	Plan          string                   `json:"plan"`
	Wallpaper     models.WallpaperSettings `json:"wallpaper"`
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	ws, err := readcache.GetOrCompute(ctx, h.cache, readcache.Key(readcache.KindSettings, u.ID),
		func(ctx context.Context) (models.WallpaperSettings, error) {
			return h.wallpaper.Get(ctx, u.UserID())
		})
	if err != nil {
		h.logger.Error("load settings failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to load settings")
		return
	}
	jsonutil.Tagged(w, r, newView(u.Timezone, u.Plan, ws))
}

func (h *Handler) zones(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, map[string]any{"groups": timezones.Groups()})
}

func newView(tz, plan string, ws models.WallpaperSettings) View {
	tz = zoneName(tz)
	return View{Timezone: tz, TimezoneLabel: timezones.Label(tz), Plan: plan, Wallpaper: ws}
}

type updateInput struct {
	Timezone  *string                   `json:"timezone"`
	Wallpaper *models.WallpaperSettings `json:"wallpaper"`
}

// update validates every field before writing any of them.
func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var in updateInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}
	if in.Timezone == nil && in.Wallpaper == nil {
		jsonutil.BadRequest(w, "Nothing to update")
		return
	}

	fields := map[string]string{}
	if in.Timezone != nil && !calendar.ValidTimezone(*in.Timezone) {
		fields["timezone"] = "Unknown time zone."
	}
	if in.Wallpaper != nil {
		in.Wallpaper.Quote = htmlsanitize.Line(in.Wallpaper.Quote, 0)
		if err := wallpaperstore.Validate(*in.Wallpaper); err != nil {
			fields["wallpaper"] = err.Error()
		}
	}
	if len(fields) > 0 {
		jsonutil.ValidationError(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	tz := u.Timezone
	if in.Timezone != nil {
		if err := h.users.SetTimezone(ctx, u.UserID(), *in.Timezone); err != nil {
			h.logger.Error("save timezone failed", zap.String("user_id", u.ID), zap.Error(err))
			jsonutil.InternalError(w, "Failed to save settings")
			return
		}
		tz = *in.Timezone
	}

	var (
		ws  models.WallpaperSettings
		err error
	)
	if in.Wallpaper != nil {
		ws, err = h.wallpaper.Upsert(ctx, u.UserID(), *in.Wallpaper)
	} else {
		ws, err = h.wallpaper.Get(ctx, u.UserID())
	}
	if err != nil {
		h.logger.Error("save wallpaper settings failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to save settings")
		return
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeSettings)
	if in.Timezone != nil {
		// "Today" moved, so streaks and day-keyed aggregates are stale too.
		_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeHabits)
	}
	jsonutil.OK(w, newView(tz, u.Plan, ws))
}

func zoneName(tz string) string {
	if tz == "" {
		return "UTC"
	}
	return tz
}
