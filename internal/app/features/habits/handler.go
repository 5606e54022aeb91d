// Package habits provides the habit list, CRUD and daily toggle endpoints.
//
// Endpoints (mounted at /api/habits, session required):
//   - GET    /                - Active habits
//   - POST   /                - Create a habit
//   - PATCH  /{id}            - Update title, description, color or order
//   - DELETE /{id}            - Deactivate (history is kept)
//   - POST   /{id}/toggle     - Flip done for a day (default: today)
//   - GET    /{id}/logs       - Logs between ?from= and ?to=
package habits

import (
	"context"
	"errors"
	"net/http"

	habitlogstore "github.com/consistencygrid/consistencygrid/internal/app/store/habitlogs"
	habitstore "github.com/consistencygrid/consistencygrid/internal/app/store/habits"
	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
	"github.com/consistencygrid/consistencygrid/internal/app/system/clock"
	"github.com/consistencygrid/consistencygrid/internal/app/system/htmlsanitize"
	"github.com/consistencygrid/consistencygrid/internal/app/system/inputval"
	"github.com/consistencygrid/consistencygrid/internal/app/system/invalidate"
	"github.com/consistencygrid/consistencygrid/internal/app/system/jsonutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/readcache"
	"github.com/consistencygrid/consistencygrid/internal/app/system/timeouts"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const (
	// DefaultLogDays is the span returned by Logs when no range is given.
	DefaultLogDays = 30
	// MaxLogDays caps the span a single Logs request may cover.
	MaxLogDays = 366
)

// Handler serves the habit endpoints.
type Handler struct {
	habits *habitstore.Store
	logs   *habitlogstore.Store
	cache  *readcache.Cache
	inv    *invalidate.Invalidator
	clock  clock.Clock
	logger *zap.Logger
}

// NewHandler creates a habits handler.
func NewHandler(db *mongo.Database, cache *readcache.Cache, inv *invalidate.Invalidator, c clock.Clock, logger *zap.Logger) *Handler {
	return &Handler{
		habits: habitstore.New(db),
		logs:   habitlogstore.New(db),
		cache:  cache,
		inv:    inv,
		clock:  clock.OrReal(c),
		logger: logger,
	}
}

type habitInput struct {
	Title       *string `json:"title" validate:"max=400" label:"Title"`
	Description *string `json:"description" label:"Description"`
	Color       *string `json:"color" validate:"max=20" label:"Color"`
	SortOrder   *int    `json:"sortOrder" label:"Sort order"`
}

// List handles GET /api/habits.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	habits, err := readcache.GetOrCompute(ctx, h.cache, readcache.Key(readcache.KindHabits, u.ID),
		func(ctx context.Context) ([]models.Habit, error) {
			return h.habits.ListActive(ctx, u.UserID())
		})
	if err != nil {
		h.logger.Error("list habits failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to load habits")
		return
	}
	jsonutil.Tagged(w, r, map[string]any{"habits": habits})
}

// Create handles POST /api/habits.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var in habitInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	habit := models.Habit{UserID: u.UserID()}
	if in.Title != nil {
		habit.Title = htmlsanitize.Line(*in.Title, habitstore.MaxTitleLen)
	}
	if in.Description != nil {
		habit.Description = htmlsanitize.Text(*in.Description, 500)
	}
	if in.Color != nil {
		habit.Color = htmlsanitize.Line(*in.Color, 0)
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	created, err := h.habits.Create(ctx, habit)
	if errors.Is(err, habitstore.ErrTitleRequired) {
		jsonutil.ValidationError(w, map[string]string{"title": "Title is required."})
		return
	}
	if err != nil {
		h.logger.Error("create habit failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to create habit")
		return
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeHabits)
	jsonutil.Created(w, created)
}

// Update handles PATCH /api/habits/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id, ok := inputval.PathID(r, "id")
	if !ok {
		jsonutil.BadRequest(w, "Invalid habit id")
		return
	}

	var in habitInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	upd := habitstore.Update{SortOrder: in.SortOrder}
	if in.Title != nil {
		t := htmlsanitize.Line(*in.Title, habitstore.MaxTitleLen)
		upd.Title = &t
	}
	if in.Description != nil {
		d := htmlsanitize.Text(*in.Description, 500)
		upd.Description = &d
	}
	if in.Color != nil {
		c := htmlsanitize.Line(*in.Color, 0)
		upd.Color = &c
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	habit, err := h.habits.Update(ctx, u.UserID(), id, upd)
	switch {
	case errors.Is(err, habitstore.ErrNotFound):
		jsonutil.NotFound(w, "Habit not found")
		return
	case errors.Is(err, habitstore.ErrTitleRequired):
		jsonutil.ValidationError(w, map[string]string{"title": "Title is required."})
		return
	case err != nil:
		h.logger.Error("update habit failed", zap.String("habit_id", id.Hex()), zap.Error(err))
		jsonutil.InternalError(w, "Failed to update habit")
		return
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeHabits)
	jsonutil.OK(w, habit)
}

// Delete handles DELETE /api/habits/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id, ok := inputval.PathID(r, "id")
	if !ok {
		jsonutil.BadRequest(w, "Invalid habit id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	err := h.habits.Deactivate(ctx, u.UserID(), id)
	if errors.Is(err, habitstore.ErrNotFound) {
		jsonutil.NotFound(w, "Habit not found")
		return
	}
	if err != nil {
		h.logger.Error("deactivate habit failed", zap.String("habit_id", id.Hex()), zap.Error(err))
		jsonutil.InternalError(w, "Failed to delete habit")
		return
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeHabits)
	jsonutil.NoContent(w)
}

type toggleInput struct {
	Date string `json:"date" validate:"ymd" label:"Date"`
}

// Toggle handles POST /api/habits/{id}/toggle. The body's date defaults to
// today in the user's time zone; future days are refused.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id, ok := inputval.PathID(r, "id")
	if !ok {
		jsonutil.BadRequest(w, "Invalid habit id")
		return
	}

	var in toggleInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	today := calendar.Today(h.clock.Now(), u.Location())
	day := today
	if in.Date != "" {
		day = calendar.MustParse(in.Date)
	}
	if day.After(today) {
		jsonutil.BadRequest(w, "Cannot log a future day")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, ok := h.activeHabit(ctx, w, u.UserID(), id); !ok {
		return
	}

	log, err := h.logs.Toggle(ctx, u.UserID(), id, day)
	if err != nil {
		h.logger.Error("toggle habit failed",
			zap.String("habit_id", id.Hex()),
			zap.String("date", day.String()),
			zap.Error(err))
		jsonutil.InternalError(w, "Failed to update habit")
		return
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeHabits)
	jsonutil.OK(w, log)
}

// Logs handles GET /api/habits/{id}/logs?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id, ok := inputval.PathID(r, "id")
	if !ok {
		jsonutil.BadRequest(w, "Invalid habit id")
		return
	}

	from, to, err := h.logRange(r, u)
	if err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if _, err := h.habits.Get(ctx, u.UserID(), id); err != nil {
		if errors.Is(err, habitstore.ErrNotFound) {
			jsonutil.NotFound(w, "Habit not found")
			return
		}
		h.logger.Error("load habit failed", zap.String("habit_id", id.Hex()), zap.Error(err))
		jsonutil.InternalError(w, "Failed to load logs")
		return
	}

	logs, err := h.logs.ListForHabits(ctx, u.UserID(), []primitive.ObjectID{id}, from, to)
	if err != nil {
		h.logger.Error("list habit logs failed", zap.String("habit_id", id.Hex()), zap.Error(err))
		jsonutil.InternalError(w, "Failed to load logs")
		return
	}
	jsonutil.OK(w, map[string]any{
		"from": from,
		"to":   to,
		"logs": logs,
	})
}

func (h *Handler) logRange(r *http.Request, u *auth.SessionUser) (from, to calendar.Date, err error) {
	q := r.URL.Query()
	to = calendar.Today(h.clock.Now(), u.Location())
	if s := q.Get("to"); s != "" {
		if to, err = calendar.Parse(s); err != nil {
			return from, to, errors.New("to must be YYYY-MM-DD")
		}
	}
	from = to.AddDays(-(DefaultLogDays - 1))
	if s := q.Get("from"); s != "" {
		if from, err = calendar.Parse(s); err != nil {
			return from, to, errors.New("from must be YYYY-MM-DD")
		}
	}
	if from.After(to) {
		return from, to, errors.New("from must not be after to")
	}
	if from.DaysUntil(to) >= MaxLogDays {
		return from, to, errors.New("range is too long")
	}
	return from, to, nil
}

func (h *Handler) activeHabit(ctx context.Context, w http.ResponseWriter, userID, id primitive.ObjectID) (*models.Habit, bool) {
	habit, err := h.habits.Get(ctx, userID, id)
	if errors.Is(err, habitstore.ErrNotFound) || (err == nil && !habit.IsActive) {
		jsonutil.NotFound(w, "Habit not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error("load habit failed", zap.String("habit_id", id.Hex()), zap.Error(err))
		jsonutil.InternalError(w, "Failed to load habit")
		return nil, false
	}
	return habit, true
}
