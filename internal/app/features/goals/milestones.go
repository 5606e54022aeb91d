package goals

import (
	"context"
	"errors"
	"net/http"

	goalstore "github.com/consistencygrid/consistencygrid/internal/app/store/goals"
	milestonestore "github.com/consistencygrid/consistencygrid/internal/app/store/milestones"
	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
	"github.com/consistencygrid/consistencygrid/internal/app/system/htmlsanitize"
	"github.com/consistencygrid/consistencygrid/internal/app/system/inputval"
	"github.com/consistencygrid/consistencygrid/internal/app/system/invalidate"
	"github.com/consistencygrid/consistencygrid/internal/app/system/jsonutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/timeouts"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type milestoneInput struct {
	Title  string `json:"title" validate:"required,max=400" label:"Title"`
	Date   string `json:"date" validate:"required,ymd" label:"Date"`
	GoalID string `json:"goalId" label:"Goal"`
}

// ListMilestones handles GET /api/milestones?from=YYYY-MM-DD&limit=N.
func (h *Handler) ListMilestones(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	q := r.URL.Query()

	var from calendar.Date
	if s := q.Get("from"); s != "" {
		d, err := calendar.Parse(s)
		if err != nil {
			jsonutil.BadRequest(w, "from must be YYYY-MM-DD")
			return
		}
		from = d
	}
	limit := queryInt(q.Get("limit"), maxPageSize)
	if limit > maxPageSize {
		limit = maxPageSize
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	ms, err := h.milestones.List(ctx, u.UserID(), from, limit)
	if err != nil {
		h.logger.Error("list milestones failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to load milestones")
		return
	}
	jsonutil.OK(w, map[string]any{"milestones": ms})
}

// CreateMilestone handles POST /api/milestones. A goalId must name one of
// the user's goals.
func (h *Handler) CreateMilestone(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)

	var in milestoneInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}
	if res := inputval.Validate(in); res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	m := models.Milestone{
		UserID: u.UserID(),
		Title:  htmlsanitize.Line(in.Title, maxTitleLen),
		Date:   in.Date,
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	if in.GoalID != "" {
		gid, err := primitive.ObjectIDFromHex(in.GoalID)
		if err != nil {
			jsonutil.ValidationError(w, map[string]string{"goalId": "Goal is not valid."})
			return
		}
		if _, err := h.goals.Get(ctx, u.UserID(), gid); err != nil {
			if errors.Is(err, goalstore.ErrNotFound) {
				jsonutil.ValidationError(w, map[string]string{"goalId": "Goal does not exist."})
				return
			}
			h.logger.Error("load goal failed", zap.String("goal_id", in.GoalID), zap.Error(err))
			jsonutil.InternalError(w, "Failed to create milestone")
			return
		}
		m.GoalID = &gid
	}

	created, err := h.milestones.Create(ctx, m)
	switch {
	case errors.Is(err, milestonestore.ErrTitleRequired), errors.Is(err, milestonestore.ErrBadDate):
		jsonutil.BadRequest(w, err.Error())
		return
	case err != nil:
		h.logger.Error("create milestone failed", zap.String("user_id", u.ID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to create milestone")
		return
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeGoals)
	jsonutil.Created(w, created)
}

// DeleteMilestone handles DELETE /api/milestones/{id}.
func (h *Handler) DeleteMilestone(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.CurrentUser(r)
	id, ok := inputval.PathID(r, "id")
	if !ok {
		jsonutil.BadRequest(w, "Invalid milestone id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	err := h.milestones.Delete(ctx, u.UserID(), id)
	if errors.Is(err, milestonestore.ErrNotFound) {
		jsonutil.NotFound(w, "Milestone not found")
		return
	}
	if err != nil {
		h.logger.Error("delete milestone failed", zap.String("milestone_id", id.Hex()), zap.Error(err))
		jsonutil.InternalError(w, "Failed to delete milestone")
		return
	}

	_ = h.inv.Invalidate(ctx, u.ID, invalidate.ScopeGoals)
	jsonutil.NoContent(w)
}
