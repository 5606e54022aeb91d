// Package goals provides the goal, sub-goal and milestone endpoints.
//
// Goal endpoints (mounted at /api/goals, session required):
//   - GET    /                        - Goals, newest first (?status=&limit=&page=)
//   - POST   /                        - Create a goal
//   - PATCH  /{id}                    - Update fields or status
//   - DELETE /{id}                    - Delete; linked milestones are kept
//   - POST   /{id}/subgoals           - Add a sub-goal
//   - POST   /{id}/subgoals/{sub}/toggle
//   - DELETE /{id}/subgoals/{sub}
//
// Milestone endpoints (mounted at /api/milestones):
//   - GET    /                        - Milestones by date (?from=)
//   - POST   /                        - Create a milestone
//   - DELETE /{id}                    - Delete a milestone
package goals

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	goalstore "github.com/consistencygrid/consistencygrid/internal/app/store/goals"
	milestonestore "github.com/consistencygrid/consistencygrid/internal/app/store/milestones"
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

const (
	maxTitleLen       = 200
	maxDescriptionLen = 2000
	maxCategoryLen    = 50
	maxPageSize       = 100
)

// Handler serves the goal and milestone endpoints.
type Handler struct {
	goals      *goalstore.Store
	milestones *milestonestore.Store
	cache      *readcache.Cache
	inv        *invalidate.Invalidator
	logger     *zap.Logger
}

// NewHandler creates a goals handler.
func NewHandler(db *mongo.Database, cache *readcache.Cache, inv *invalidate.Invalidator, logger *zap.Logger) *Handler {
	return &Handler{
		goals:      goalstore.New(db),
		milestones: milestonestore.New(db),
		cache:      cache,
		inv:        inv,
		logger:     logger,
	}
}

type subGoalInput struct {
	Title string `json:"title" validate:"required,max=400" label:"Title"`
}

type createInput struct {
	Title       string         `json:"title" validate:"required,max=400" label:"Title"`
	Description string         `json:"description" label:"Description"`
	Category    string         `json:"category" label:"Category"`
	TargetDate  string         `json:"targetDate" validate:"ymd" label:"Target date"`
	Status      string         `json:"status" label:"Status"`
	SubGoals    []subGoalInput `json:"subGoals" label:"Sub-goals"`
}

type updateInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	TargetDate  *string `json:"targetDate"`
	Status      *string `json:"status"`
}

// List handles GET /api/goals.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	q := r.URL.Query()

	status := q.Get("status")
	if status != "" && !models.IsValidGoalStatus(status) {
		jsonutil.BadRequest(w, "Unknown status")
		return
	}
	limit := queryInt(q.Get("limit"), 20)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	page := queryInt(q.Get("page"), 1)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	key := readcache.Key(readcache.KindGoals, u.ID, status, strconv.FormatInt(limit, 10), strconv.FormatInt(page, 10))
	goals, err := readcache.GetOrCompute(ctx, h.cache, key, func(ctx context.Context) ([]models.Goal, error) {
		return h.goals.List(ctx, u.UserID(), status, limit, page)
	})
	if err != nil {
		h.logger.Error("list goals failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to load goals")
		return
	}
	jsonutil.Tagged(w, r, map[string]any{"goals": goals, "page": page, "limit": limit})
}

// Create handles POST /api/goals.
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

	g := models.Goal{
		UserID:      u.UserID(),
		Title:       htmlsanitize.Line(in.Title, maxTitleLen),
		Description: htmlsanitize.Text(in.Description, maxDescriptionLen),
		Category:    htmlsanitize.Line(in.Category, maxCategoryLen),
		TargetDate:  in.TargetDate,
		Status:      in.Status,
	}
	for _, s := range in.SubGoals {
		title := htmlsanitize.Line(s.Title, maxTitleLen)
		if title == "" {
			jsonutil.ValidationError(w, map[string]string{"subGoals": "Every sub-goal needs a title."})
			return
		}
		g.SubGoals = append(g.SubGoals, models.SubGoal{Title: title})
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	created, err := h.goals.Create(ctx, g)
	if goalstore.IsValidationError(err) {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("create goal failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to create goal")
		return
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeGoals)
	jsonutil.Created(w, created)
}

// Update handles PATCH /api/goals/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id, ok := inputval.PathID(r, "id")
	if !ok {
		jsonutil.BadRequest(w, "Invalid goal id")
		return
	}

	var in updateInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}

	upd := goalstore.Update{TargetDate: in.TargetDate, Status: in.Status}
	upd.Title = sanitized(in.Title, maxTitleLen, htmlsanitize.Line)
	upd.Description = sanitized(in.Description, maxDescriptionLen, htmlsanitize.Text)
	upd.Category = sanitized(in.Category, maxCategoryLen, htmlsanitize.Line)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	g, err := h.goals.Update(ctx, u.UserID(), id, upd)
	if !h.writeResult(w, err, "update goal", id.Hex()) {
		return
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeGoals)
	jsonutil.OK(w, g)
}

// Delete handles DELETE /api/goals/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id, ok := inputval.PathID(r, "id")
	if !ok {
		jsonutil.BadRequest(w, "Invalid goal id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if !h.writeResult(w, h.goals.Delete(ctx, u.UserID(), id), "delete goal", id.Hex()) {
		return
	}
	if err := h.milestones.DetachGoal(ctx, u.UserID(), id); err != nil {
		h.logger.Warn("detach milestones failed", zap.String("goal_id", id.Hex()), zap.Error(err))
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeGoals)
	jsonutil.NoContent(w)
}

// AddSubGoal handles POST /api/goals/{id}/subgoals.
func (h *Handler) AddSubGoal(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id, ok := inputval.PathID(r, "id")
	if !ok {
		jsonutil.BadRequest(w, "Invalid goal id")
		return
	}

	var in subGoalInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	g, err := h.goals.AddSubGoal(ctx, u.UserID(), id, htmlsanitize.Line(in.Title, maxTitleLen))
	if !h.writeResult(w, err, "add sub-goal", id.Hex()) {
		return
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeGoals)
	jsonutil.Created(w, g)
}

// ToggleSubGoal handles POST /api/goals/{id}/subgoals/{sub}/toggle.
func (h *Handler) ToggleSubGoal(w http.ResponseWriter, r *http.Request) {
	h.changeSubGoal(w, r, "toggle sub-goal", h.goals.ToggleSubGoal)
}

// DeleteSubGoal handles DELETE /api/goals/{id}/subgoals/{sub}.
func (h *Handler) DeleteSubGoal(w http.ResponseWriter, r *http.Request) {
	h.changeSubGoal(w, r, "delete sub-goal", h.goals.DeleteSubGoal)
}

type subGoalOp func(ctx context.Context, userID, goalID, subID primitive.ObjectID) (*models.Goal, error)

func (h *Handler) changeSubGoal(w http.ResponseWriter, r *http.Request, op string, fn subGoalOp) {
	u, _ := auth.CurrentUser(r)
	id, ok := inputval.PathID(r, "id")
	sub, subOK := inputval.PathID(r, "sub")
	if !ok || !subOK {
		jsonutil.BadRequest(w, "Invalid id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	g, err := fn(ctx, u.UserID(), id, sub)
	if !h.writeResult(w, err, op, id.Hex()) {
		return
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeGoals)
	jsonutil.OK(w, g)
}

// writeResult maps a store error onto a response. It returns true when err
// is nil and the caller should continue.
func (h *Handler) writeResult(w http.ResponseWriter, err error, op, goalID string) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, goalstore.ErrNotFound):
		jsonutil.NotFound(w, "Goal not found")
	case errors.Is(err, goalstore.ErrSubGoalNotFound):
		jsonutil.NotFound(w, "Sub-goal not found")
	case goalstore.IsValidationError(err):
		jsonutil.BadRequest(w, err.Error())
	default:
		h.logger.Error(op+" failed", zap.String("goal_id", goalID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to save goal")
	}
	return false
}

func sanitized(s *string, max int, clean func(string, int) string) *string {
	if s == nil {
		return nil
	}
	v := clean(*s, max)
	return &v
}

func queryInt(s string, def int64) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
