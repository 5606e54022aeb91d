package payments

import (
	"net/http"

	"github.com/consistencygrid/consistencygrid/internal/app/system/apicors"
	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Routes returns the session-authenticated order router.
func Routes(h *Handler, sm *auth.SessionManager, limiter *ratelimit.Limiter, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)

	r.Get("/", h.ListOrders)
	r.With(ratelimit.Middleware(limiter, ratelimit.ActionDefault, logger)).Post("/", h.CreateOrder)

	return r
}

// WebhookRoutes returns the gateway callback router. It is cookie-free, so
// it sits outside CSRF protection and accepts any origin.
func WebhookRoutes(h *Handler, apiKey string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(apicors.Middleware())
	r.Use(auth.APIKeyAuth(apiKey, logger))

	r.Post("/", h.Webhook)

	return r
}
