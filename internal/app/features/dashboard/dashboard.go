// internal/app/features/dashboard/dashboard.go

// Package dashboard serves the per-user aggregates shown on the home grid.
//
// Endpoints (session required):
//   - GET /api/dashboard/stats - Today's counts, goal counts and streaks
//   - GET /api/streaks         - Current and best streak with recent kept days
//
// Both are read through the cache under keys that include the user's local
// date, so a cached value never outlives the day it describes.
package dashboard

import (
	"context"
	"net/http"

	goalstore "github.com/consistencygrid/consistencygrid/internal/app/store/goals"
	habitlogstore "github.com/consistencygrid/consistencygrid/internal/app/store/habitlogs"
	habitstore "github.com/consistencygrid/consistencygrid/internal/app/store/habits"
	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
	"github.com/consistencygrid/consistencygrid/internal/app/system/clock"
	"github.com/consistencygrid/consistencygrid/internal/app/system/jsonutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/readcache"
	"github.com/consistencygrid/consistencygrid/internal/app/system/streak"
	"github.com/consistencygrid/consistencygrid/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// RecentDays is how many trailing days /api/streaks reports as kept or not.
const RecentDays = 30

// Handler provides dashboard handlers.
type Handler struct {
	habits *habitstore.Store
	logs   *habitlogstore.Store
	goals  *goalstore.Store
	cache  *readcache.Cache
	clock  clock.Clock
	logger *zap.Logger
}

// NewHandler creates a new dashboard Handler.
func NewHandler(db *mongo.Database, cache *readcache.Cache, c clock.Clock, logger *zap.Logger) *Handler {
	return &Handler{
		habits: habitstore.New(db),
		logs:   habitlogstore.New(db),
		goals:  goalstore.New(db),
		cache:  cache,
		clock:  clock.OrReal(c),
		logger: logger,
	}
}

// StatsRoutes returns the router mounted at /api/dashboard.
func StatsRoutes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireSignedIn)
	r.Get("/stats", h.stats)
	return r
}

// StreakRoutes returns the router mounted at /api/streaks.
func StreakRoutes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireSignedIn)
	r.Get("/", h.streaks)
	return r
}

// Stats is the /api/dashboard/stats body.
type Stats struct {
	Date           calendar.Date    `json:"date"`
	ActiveHabits   int64            `json:"activeHabits"`
	DoneToday      int64            `json:"doneToday"`
	CompletionRate int              `json:"completionRate"` // percent of active habits done today
	Goals          map[string]int64 `json:"goals"`
	streak.Result
}

// Streaks is the /api/streaks body. Recent runs oldest to newest and ends
// today.
type Streaks struct {
	Date calendar.Date `json:"date"`
	streak.Result
	Recent []DayMark `json:"recent"`
}

// DayMark reports whether one day was kept.
type DayMark struct {
	Date calendar.Date `json:"date"`
	Kept bool          `json:"kept"`
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	today := calendar.Today(h.clock.Now(), u.Location())

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	stats, err := readcache.GetOrCompute(ctx, h.cache, readcache.Key(readcache.KindDashboardStats, u.ID, today.String()),
		func(ctx context.Context) (Stats, error) {
			return h.computeStats(ctx, u.UserID(), u.ID, today)
		})
	if err != nil {
		h.logger.Error("dashboard stats failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to load dashboard")
		return
	}
	jsonutil.Tagged(w, r, stats)
}

func (h *Handler) streaks(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	today := calendar.Today(h.clock.Now(), u.Location())

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	out, err := h.streakData(ctx, u.UserID(), u.ID, today)
	if err != nil {
		h.logger.Error("streaks failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to load streaks")
		return
	}
	jsonutil.Tagged(w, r, out)
}

func (h *Handler) computeStats(ctx context.Context, userID primitive.ObjectID, uid string, today calendar.Date) (Stats, error) {
	ids, err := h.habits.ActiveIDs(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	done, err := h.logs.CountDoneOn(ctx, userID, ids, today)
	if err != nil {
		return Stats{}, err
	}
	goals, err := h.goals.CountByStatus(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	st, err := h.streakData(ctx, userID, uid, today)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{
		Date:         today,
		ActiveHabits: int64(len(ids)),
		DoneToday:    done,
		Goals:        goals,
		Result:       st.Result,
	}
	if s.ActiveHabits > 0 {
		s.CompletionRate = int(done * 100 / s.ActiveHabits)
	}
	return s, nil
}

// streakData reads the user's streaks through the cache. Stats shares the
// entry, so a toggle that purges streaks also refreshes both endpoints.
func (h *Handler) streakData(ctx context.Context, userID primitive.ObjectID, uid string, today calendar.Date) (Streaks, error) {
	return readcache.GetOrCompute(ctx, h.cache, readcache.Key(readcache.KindStreaks, uid, today.String()),
		func(ctx context.Context) (Streaks, error) {
			ids, err := h.habits.ActiveIDs(ctx, userID)
			if err != nil {
				return Streaks{}, err
			}
			logs, err := h.logs.StreakLogs(ctx, userID, ids)
			if err != nil {
				return Streaks{}, err
			}
			return buildStreaks(logs, today), nil
		})
}

func buildStreaks(logs []streak.Log, today calendar.Date) Streaks {
	kept := streak.KeptDays(logs, today)
	recent := make([]DayMark, 0, RecentDays)
	for d := today.AddDays(-(RecentDays - 1)); !d.After(today); d = d.AddDays(1) {
		_, ok := kept[d]
		recent = append(recent, DayMark{Date: d, Kept: ok})
	}
	return Streaks{
		Date:   today,
		Result: streak.Calculate(logs, today),
		Recent: recent,
	}
}
