// internal/app/features/ledger/routes.go
package ledgerfeature

import (
	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/domain/models"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the admin-only ledger browser.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Use(sm.RequireRole(models.RoleAdmin))

	r.Get("/", h.List)
	r.Get("/summary", h.Summary)
	r.Get("/{requestID}", h.Detail)
	return r
}
