// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	authapifeature "github.com/consistencygrid/consistencygrid/internal/app/features/authapi"
	dashboardfeature "github.com/consistencygrid/consistencygrid/internal/app/features/dashboard"
	errorsfeature "github.com/consistencygrid/consistencygrid/internal/app/features/errors"
	goalsfeature "github.com/consistencygrid/consistencygrid/internal/app/features/goals"
	habitsfeature "github.com/consistencygrid/consistencygrid/internal/app/features/habits"
	healthfeature "github.com/consistencygrid/consistencygrid/internal/app/features/health"
	ledgerfeature "github.com/consistencygrid/consistencygrid/internal/app/features/ledger"
	paymentsfeature "github.com/consistencygrid/consistencygrid/internal/app/features/payments"
	remindersfeature "github.com/consistencygrid/consistencygrid/internal/app/features/reminders"
	settingsfeature "github.com/consistencygrid/consistencygrid/internal/app/features/settings"
	ledgerstore "github.com/consistencygrid/consistencygrid/internal/app/store/ledger"
	sessionstore "github.com/consistencygrid/consistencygrid/internal/app/store/sessions"
	userstore "github.com/consistencygrid/consistencygrid/internal/app/store/users"
	"github.com/consistencygrid/consistencygrid/internal/app/system/auth"
	"github.com/consistencygrid/consistencygrid/internal/app/system/ledger"
	"github.com/consistencygrid/consistencygrid/internal/app/system/metrics"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// webhookPath is called by the payment gateway with a bearer key, never with
// session cookies, so it bypasses CSRF.
const webhookPath = "/api/payments/webhook"

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// Startup have completed.
//
// Browser clients authenticate with the session cookie and send the token
// from GET /api/csrf in the X-CSRF-Token header on unsafe methods. The
// payment webhook authenticates with a bearer key instead.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase
	svc := deps.Services

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// Fresh user data on each request: plan, timezone and disabled status
	// take effect immediately.
	sessionMgr.SetUserFetcher(userstore.NewFetcher(db, logger))
	sessionMgr.SetSessionTracker(sessionstore.New(db, nil))

	errorsHandler := errorsfeature.NewHandler(logger)

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	// CORS must run early to answer preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	r.Use(metrics.Middleware)

	// Loads SessionUser into context if signed in.
	r.Use(sessionMgr.LoadSessionUser)

	csrfOpts := []csrf.Option{
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.CookieName("consistencygrid_csrf"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(errorsHandler.CSRFFailure)),
	}
	// In dev mode, trust localhost origins for CSRF validation.
	if !secure {
		csrfOpts = append(csrfOpts, csrf.TrustedOrigins([]string{
			"localhost:8080",
			"localhost:3000",
			"127.0.0.1:8080",
			"127.0.0.1:3000",
		}))
	}
	if appCfg.SessionDomain != "" {
		csrfOpts = append(csrfOpts, csrf.Domain(appCfg.SessionDomain))
	}
	csrfProtect := csrf.Protect([]byte(appCfg.CSRFKey), csrfOpts...)

	csrfMiddleware := func(next http.Handler) http.Handler {
		csrfHandler := csrfProtect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path == webhookPath {
				next.ServeHTTP(w, req)
				return
			}
			csrfHandler.ServeHTTP(w, req)
		})
	}
	r.Use(csrfMiddleware)

	// ─────────────────────────────────────────────────────────────────────────────
	// Operational endpoints
	// ─────────────────────────────────────────────────────────────────────────────

	probes := []healthfeature.Dependency{healthfeature.Mongo(deps.MongoClient)}
	if deps.Redis != nil {
		probes = append(probes, healthfeature.Redis(deps.Redis))
	}
	healthHandler := healthfeature.NewHandler(logger, probes...)
	if taskRunner != nil {
		healthHandler.ReportJobs(taskRunner)
	}
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	r.Handle("/metrics", metrics.Handler())

	// ─────────────────────────────────────────────────────────────────────────────
	// Session API
	// ─────────────────────────────────────────────────────────────────────────────

	r.Get("/api/csrf", authapifeature.CSRFToken)

	authHandler := authapifeature.NewHandler(db, sessionMgr, svc.Attempts, svc.Inv, appCfg.SessionMaxAge, nil, logger)
	r.Mount("/api/auth", authapifeature.Routes(authHandler, sessionMgr, svc.Edge))

	habitsHandler := habitsfeature.NewHandler(db, svc.Cache, svc.Inv, nil, logger)
	r.Mount("/api/habits", habitsfeature.Routes(habitsHandler, sessionMgr, svc.Limiter, logger))

	goalsHandler := goalsfeature.NewHandler(db, svc.Cache, svc.Inv, logger)
	r.Mount("/api/goals", goalsfeature.Routes(goalsHandler, sessionMgr, svc.Limiter, logger))
	r.Mount("/api/milestones", goalsfeature.MilestoneRoutes(goalsHandler, sessionMgr, svc.Limiter, logger))

	remindersHandler := remindersfeature.NewHandler(db, svc.Cache, svc.Inv, logger)
	r.Mount("/api/reminders", remindersfeature.Routes(remindersHandler, sessionMgr, svc.Limiter, logger))

	settingsHandler := settingsfeature.NewHandler(db, svc.Cache, svc.Inv, logger)
	r.Mount("/api/settings", settingsfeature.Routes(settingsHandler, sessionMgr, svc.Limiter, logger))

	dashboardHandler := dashboardfeature.NewHandler(db, svc.Cache, nil, logger)
	r.Mount("/api/dashboard", dashboardfeature.StatsRoutes(dashboardHandler, sessionMgr))
	r.Mount("/api/streaks", dashboardfeature.StreakRoutes(dashboardHandler, sessionMgr))

	paymentsHandler := paymentsfeature.NewHandler(db, svc.Inv, paymentsfeature.DefaultPrices, logger)
	r.Mount("/api/payments/orders", paymentsfeature.Routes(paymentsHandler, sessionMgr, svc.Limiter, logger))

	// ─────────────────────────────────────────────────────────────────────────────
	// Payment webhook
	// Every gateway call is written to the ledger for debugging integrations.
	// ─────────────────────────────────────────────────────────────────────────────
	ledgerStore := ledgerstore.New(db)
	r.Route(webhookPath, func(r chi.Router) {
		r.Use(ledger.Middleware(ledger.DefaultConfig(ledgerStore, logger)))
		r.Mount("/", paymentsfeature.WebhookRoutes(paymentsHandler, appCfg.PaymentAPIKey, logger))
	})

	// Ledger browser (admin only)
	r.Mount("/api/admin/ledger", ledgerfeature.Routes(ledgerfeature.NewHandler(db, logger), sessionMgr))

	r.NotFound(errorsHandler.NotFound)
	r.MethodNotAllowed(errorsHandler.MethodNotAllowed)

	return r, nil
}
