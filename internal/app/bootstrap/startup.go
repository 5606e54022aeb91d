// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"time"

	ledgerstore "github.com/consistencygrid/consistencygrid/internal/app/store/ledger"
	paymentstore "github.com/consistencygrid/consistencygrid/internal/app/store/payments"
	"github.com/consistencygrid/consistencygrid/internal/app/store/sessions"
	"github.com/consistencygrid/consistencygrid/internal/app/system/tasks"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It starts the cache sweep, limiter pruning and the housekeeping jobs.
// Returning a non-nil error aborts startup.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	deps.Services.Cache.Start()
	deps.Services.Limiter.Start()

	startTaskRunner(appCfg, deps, logger)
	return nil
}

// taskRunner is the global task runner instance, used for graceful shutdown.
var taskRunner *tasks.Runner

// startTaskRunner registers and starts the housekeeping jobs.
func startTaskRunner(appCfg AppConfig, deps DBDeps, logger *zap.Logger) {
	db := deps.MongoDatabase
	taskRunner = tasks.New(logger)

	taskRunner.Register(tasks.PaymentExpiryJob(paymentstore.New(db), appCfg.PaymentOrderTTL, logger))
	taskRunner.Register(tasks.SessionCleanupJob(sessions.New(db, nil), appCfg.SessionIdleTime, logger))
	taskRunner.Register(tasks.LedgerRetentionJob(ledgerstore.New(db), appCfg.LedgerRetention, logger))
	if deps.Services.Edge != nil {
		taskRunner.Register(deps.Services.Edge.CleanupJob(5 * time.Minute))
	}

	taskRunner.Start()
}
