package reminders

import (
	"net/http"

	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Routes returns the reminder router.
func Routes(h *Handler, sm *auth.SessionManager, limiter *ratelimit.Limiter, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	limited := ratelimit.Middleware(limiter, ratelimit.ActionDefault, logger)

	r.Get("/", h.List)
	r.With(limited).Post("/", h.Create)
	r.With(limited).Patch("/{id}", h.Update)
	r.With(limited).Delete("/{id}", h.Delete)

	return r
}
