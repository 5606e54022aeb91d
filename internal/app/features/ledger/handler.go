// internal/app/features/ledger/handler.go
package ledgerfeature

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	ledgerstore "github.com/consistencygrid/consistencygrid/internal/app/store/ledger"
	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
	"github.com/consistencygrid/consistencygrid/internal/app/system/jsonutil"
	"github.com/consistencygrid/consistencygrid/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// defaultWindow is the summary period when no "since" is given.
const defaultWindow = 24 * time.Hour

// Handler lets admins browse recorded gateway calls.
type Handler struct {
	store  *ledgerstore.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a ledger Handler.
func NewHandler(db *mongo.Database, logger *zap.Logger) *Handler {
	return &Handler{store: ledgerstore.New(db), logger: logger, now: time.Now}
}

// parseSince accepts a duration ("6h"), a UTC date ("2024-07-01") or an
// RFC 3339 instant. Empty input means now-fallback, or no bound when
// fallback is zero.
func parseSince(raw string, now time.Time, fallback time.Duration) (time.Time, bool) {
	if raw == "" {
		if fallback == 0 {
			return time.Time{}, true
		}
		return now.Add(-fallback), true
	}
	if d, err := calendar.Parse(raw); err == nil {
		return d.StartIn(time.UTC), true
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return now.Add(-d), true
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t, err == nil
}

// List handles GET /?path=&order=&errors=1&since=&limit=&page=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since, ok := parseSince(q.Get("since"), h.now(), 0)
	if !ok {
		jsonutil.BadRequest(w, "since must be a duration, YYYY-MM-DD or RFC 3339 time")
		return
	}
	limit, _ := strconv.ParseInt(q.Get("limit"), 10, 64)
	page, _ := strconv.ParseInt(q.Get("page"), 10, 64)
	errorsOnly, _ := strconv.ParseBool(q.Get("errors"))

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	entries, err := h.store.Find(ctx, ledgerstore.Query{
		Path:       q.Get("path"),
		OrderRef:   q.Get("order"),
		OnlyErrors: errorsOnly,
		Since:      since,
		Limit:      limit,
		Page:       page,
	})
	if err != nil {
		h.logger.Error("failed to load ledger entries", zap.Error(err))
		jsonutil.InternalError(w, "Failed to load ledger entries")
		return
	}
	jsonutil.OK(w, map[string]any{"entries": entries})
}

// Summary handles GET /summary?since=, defaulting to the last day.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	since, ok := parseSince(r.URL.Query().Get("since"), h.now(), defaultWindow)
	if !ok {
		jsonutil.BadRequest(w, "since must be a duration, YYYY-MM-DD or RFC 3339 time")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	sum, err := h.store.Summarize(ctx, since)
	if err != nil {
		h.logger.Error("failed to summarize ledger", zap.Error(err))
		jsonutil.InternalError(w, "Failed to summarize ledger")
		return
	}
	jsonutil.OK(w, sum)
}

// Detail handles GET /{requestID}.
func (h *Handler) Detail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	requestID := chi.URLParam(r, "requestID")
	entry, err := h.store.GetByRequestID(ctx, requestID)
	switch {
	case errors.Is(err, ledgerstore.ErrNotFound):
		jsonutil.NotFound(w, "Ledger entry not found")
	case err != nil:
		h.logger.Error("failed to load ledger entry", zap.String("request_id", requestID), zap.Error(err))
		jsonutil.InternalError(w, "Failed to load ledger entry")
	default:
		jsonutil.OK(w, entry)
	}
}
