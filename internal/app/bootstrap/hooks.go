// internal/app/bootstrap/hooks.go
package bootstrap

import (
	"github.com/dalemusser/waffle/app"
)

// Hooks plugs ConsistencyGrid into the WAFFLE lifecycle. app.Run calls them
// top to bottom; a failing hook before BuildHandler aborts startup, and
// Shutdown runs once the server has drained.
var Hooks = app.Hooks[AppConfig, DBDeps]{
	Name:           "consistencygrid",
	LoadConfig:     LoadConfig,     // core + app keys, CONSISTENCYGRID_ env
	ValidateConfig: ValidateConfig, // limits, TTLs, db timeouts
	ConnectDB:      ConnectDB,      // Mongo, optional Redis, shared services
	EnsureSchema:   EnsureSchema,   // validators, indexes, admin seed
	Startup:        Startup,        // cache sweep, limiter prune, housekeeping jobs
	BuildHandler:   BuildHandler,   // chi router and middleware
	Shutdown:       Shutdown,       // stop jobs, close Redis and Mongo
}
