package authapi

import (
	"net/http"

	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/app/system/edgelimit"
	"github.com/go-chi/chi/v5"
)

// Routes returns the auth router. The session manager's LoadSessionUser must
// run ahead of it. A nil edge limiter leaves signup and login unthrottled.
func Routes(h *Handler, sm *auth.SessionManager, edge *edgelimit.Limiter) http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if edge != nil {
			r.Use(edge.Handler)
		}
		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(sm.RequireSignedIn)
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
		r.Get("/sessions", h.Sessions)
	})

	return r
}
