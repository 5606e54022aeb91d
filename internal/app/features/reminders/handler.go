// Package reminders provides the reminder CRUD endpoints.
//
// Endpoints (mounted at /api/reminders, session required):
//   - GET    /      - Reminders ordered by time of day
//   - POST   /      - Create a reminder
//   - PATCH  /{id}  - Update title, time, days or enabled
//   - DELETE /{id}  - Delete a reminder
package reminders

import (
	"context"
	"errors"
	"net/http"

	habitstore "github.com/consistencygrid/consistencygrid/internal/app/store/habits"
	reminderstore "github.com/consistencygrid/consistencygrid/internal/app/store/reminders"
	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
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

const maxTitleLen = 100

// Handler serves the reminder endpoints.
type Handler struct {
	reminders *reminderstore.Store
	habits    *habitstore.Store
	cache     *readcache.Cache
	inv       *invalidate.Invalidator
	logger    *zap.Logger
}

// NewHandler creates a reminders handler.
func NewHandler(db *mongo.Database, cache *readcache.Cache, inv *invalidate.Invalidator, logger *zap.Logger) *Handler {
	return &Handler{
		reminders: reminderstore.New(db),
		habits:    habitstore.New(db),
		cache:     cache,
		inv:       inv,
		logger:    logger,
	}
}

type createInput struct {
	Title   string `json:"title" validate:"required,max=400" label:"Title"`
	Time    string `json:"time" validate:"required,hhmm" label:"Time"`
	Days    []int  `json:"days" label:"Days"`
	HabitID string `json:"habitId" label:"Habit"`
	Enabled *bool  `json:"enabled" label:"Enabled"`
}

type updateInput struct {
	Title   *string `json:"title"`
	Time    *string `json:"time"`
	Days    *[]int  `json:"days"`
	Enabled *bool   `json:"enabled"`
}

// List handles GET /api/reminders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	list, err := readcache.GetOrCompute(ctx, h.cache, readcache.Key(readcache.KindReminders, u.ID),
		func(ctx context.Context) ([]models.Reminder, error) {
			return h.reminders.List(ctx, u.UserID())
		})
	if err != nil {
		h.logger.Error("list reminders failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to load reminders")
		return
	}
	jsonutil.Tagged(w, r, map[string]any{"reminders": list})
}

// Create handles POST /api/reminders. Reminders start enabled unless the
// body says otherwise.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var in createInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	rem := models.Reminder{
		UserID:  u.UserID(),
		Title:   htmlsanitize.Line(in.Title, maxTitleLen),
		Time:    in.Time,
		Days:    in.Days,
		Enabled: in.Enabled == nil || *in.Enabled,
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if in.HabitID != "" {
		hid, err := primitive.ObjectIDFromHex(in.HabitID)
		if err != nil {
			jsonutil.ValidationError(w, map[string]string{"habitId": "Habit is not valid."})
			return
		}
		if _, err := h.habits.Get(ctx, u.UserID(), hid); err != nil {
			if errors.Is(err, habitstore.ErrNotFound) {
				jsonutil.ValidationError(w, map[string]string{"habitId": "Habit does not exist."})
				return
			}
			h.logger.Error("load habit failed", zap.String("habit_id", in.HabitID), zap.Error(err))
			jsonutil.InternalError(w, "Failed to create reminder")
			return
		}
		rem.HabitID = &hid
	}

	created, err := h.reminders.Create(ctx, rem)
	if reminderstore.IsValidationError(err) {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("create reminder failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to create reminder")
		return
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeSettings)
	jsonutil.Created(w, created)
}

// Update handles PATCH /api/reminders/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id, ok := inputval.PathID(r, "id")
	if !ok {
		jsonutil.BadRequest(w, "Invalid reminder id")
		return
	}

	var in updateInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}

	upd := reminderstore.Update{Time: in.Time, Days: in.Days, Enabled: in.Enabled}
	if in.Title != nil {
		t := htmlsanitize.Line(*in.Title, maxTitleLen)
		upd.Title = &t
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	rem, err := h.reminders.Update(ctx, u.UserID(), id, upd)
	switch {
	case errors.Is(err, reminderstore.ErrNotFound):
		jsonutil.NotFound(w, "Reminder not found")
		return
	case reminderstore.IsValidationError(err):
		jsonutil.BadRequest(w, err.Error())
		return
	case err != nil:
		h.logger.Error("update reminder failed", zap.String("reminder_id", id.Hex()), zap.Error(err))
		jsonutil.InternalError(w, "Failed to update reminder")
		return
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeSettings)
	jsonutil.OK(w, rem)
}

// Delete handles DELETE /api/reminders/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id, ok := inputval.PathID(r, "id")
	if !ok {
		jsonutil.BadRequest(w, "Invalid reminder id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	err := h.reminders.Delete(ctx, u.UserID(), id)
	if errors.Is(err, reminderstore.ErrNotFound) {
		jsonutil.NotFound(w, "Reminder not found")
		return
	}
	if err != nil {
		h.logger.Error("delete reminder failed", zap.String("reminder_id", id.Hex()), zap.Error(err))
		jsonutil.InternalError(w, "Failed to delete reminder")
		return
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeSettings)
	jsonutil.NoContent(w)
}
