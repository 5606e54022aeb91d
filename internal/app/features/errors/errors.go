// internal/app/features/errors/errors.go
package errors

import (
	"net/http"

	"github.com/consistencygrid/consistencygrid/internal/app/system/jsonutil"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// Handler provides the JSON fallbacks mounted on the root router.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new error Handler.
func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logger: logger}
}

// NotFound answers unmatched routes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	jsonutil.NotFound(w, "Not found")
}

// MethodNotAllowed answers a known route hit with the wrong method.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	jsonutil.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// CSRFFailure is the error handler for gorilla/csrf.
func (h *Handler) CSRFFailure(w http.ResponseWriter, r *http.Request) {
	reason := "unknown"
	if err := csrf.FailureReason(r); err != nil {
		reason = err.Error()
	}
	h.logger.Warn("CSRF validation failed",
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
		zap.String("reason", reason),
	)
	jsonutil.Forbidden(w, "CSRF token invalid or missing")
}
