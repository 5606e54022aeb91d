package goals

import (
	"net/http"

	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Routes returns the goal router. Goal creation draws from its own budget.
func Routes(h *Handler, sm *auth.SessionManager, limiter *ratelimit.Limiter, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	limited := ratelimit.Middleware(limiter, ratelimit.ActionDefault, logger)

	r.Get("/", h.List)
	r.With(ratelimit.Middleware(limiter, ratelimit.ActionGoalCreate, logger)).Post("/", h.Create)
	r.With(limited).Patch("/{id}", h.Update)
	r.With(limited).Delete("/{id}", h.Delete)
	r.With(limited).Post("/{id}/subgoals", h.AddSubGoal)
	r.With(limited).Post("/{id}/subgoals/{sub}/toggle", h.ToggleSubGoal)
	r.With(limited).Delete("/{id}/subgoals/{sub}", h.DeleteSubGoal)

	return r
}

// MilestoneRoutes returns the milestone router.
func MilestoneRoutes(h *Handler, sm *auth.SessionManager, limiter *ratelimit.Limiter, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	limited := ratelimit.Middleware(limiter, ratelimit.ActionDefault, logger)

	r.Get("/", h.ListMilestones)
	r.With(limited).Post("/", h.CreateMilestone)
	r.With(limited).Delete("/{id}", h.DeleteMilestone)

	return r
}
