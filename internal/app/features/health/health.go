// internal/app/features/health/health.go
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/consistencygrid/consistencygrid/internal/app/system/tasks"
	"github.com/consistencygrid/consistencygrid/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Dependency is a backing service the health check pings.
type Dependency struct {
	Name string
	// Required dependencies gate readiness; optional ones only degrade /health.
	Required bool
	Ping     func(ctx context.Context) error
}

// Mongo returns a required dependency that pings the primary.
func Mongo(client *mongo.Client) Dependency {
	return Dependency{
		Name:     "mongodb",
		Required: true,
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
	}
}

// Redis returns an optional dependency for the shared rate limit store.
func Redis(client redis.UniversalClient) Dependency {
	return Dependency{
		Name: "redis",
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
}

// JobReporter exposes background job counters.
type JobReporter interface {
	Snapshot() []tasks.JobStatus
}

// Handler provides health check endpoints.
type Handler struct {
	deps   []Dependency
	jobs   JobReporter
	logger *zap.Logger
}

// NewHandler creates a health Handler over deps.
func NewHandler(logger *zap.Logger, deps ...Dependency) *Handler {
	return &Handler{deps: deps, logger: logger}
}

// ReportJobs includes jobs in the full /health response.
func (h *Handler) ReportJobs(jobs JobReporter) { h.jobs = jobs }

// Response represents the health check response.
type Response struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
	Jobs     []tasks.JobStatus `json:"jobs,omitempty"`
}

// Routes returns a chi.Router with health check routes mounted.
// Provides /health (full check), /health/ready, and /health/live.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Check)
	r.Get("/ready", h.Ready)
	r.Get("/live", h.Live)
	return r
}

// MountRootEndpoints adds /ready, /readyz and /livez on the root router for
// container probes.
func MountRootEndpoints(r chi.Router, h *Handler) {
	r.Get("/ready", h.Ready)
	r.Get("/readyz", h.Ready)
	r.Get("/livez", h.Live)
}

// ping checks every dependency and reports per-service status and whether
// all required ones answered.
func (h *Handler) ping(ctx context.Context) (map[string]string, bool, bool) {
	services := make(map[string]string, len(h.deps))
	ready, healthy := true, true

	ctx, cancel := context.WithTimeout(ctx, timeouts.Ping())
	defer cancel()

	for _, d := range h.deps {
		if err := d.Ping(ctx); err != nil {
			services[d.Name] = "unavailable"
			healthy = false
			if d.Required {
				ready = false
			}
			h.logger.Warn("health check: ping failed", zap.String("service", d.Name), zap.Error(err))
			continue
		}
		services[d.Name] = "ok"
	}
	return services, ready, healthy
}

// Check reports every dependency. Any failure answers 503.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	services, ready, healthy := h.ping(r.Context())

	resp := Response{Status: "ok", Services: services}
	if h.jobs != nil {
		resp.Jobs = h.jobs.Snapshot()
	}
	code := http.StatusOK
	switch {
	case !ready:
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	case !healthy:
		resp.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// Ready answers 200 once every required dependency responds.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, ready, _ := h.ping(r.Context()); !ready {
		writeJSON(w, http.StatusServiceUnavailable, Response{Status: "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: "ready"})
}

// Live reports that the process is serving.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{Status: "alive"})
}

// Names lists the checked dependencies.
func (h *Handler) Names() []string {
	out := make([]string, 0, len(h.deps))
	for _, d := range h.deps {
		out = append(out, d.Name)
	}
	sort.Strings(out)
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
