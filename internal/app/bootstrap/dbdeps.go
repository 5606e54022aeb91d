// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/consistencygrid/consistencygrid/internal/app/store/loginattempts"
	"github.com/consistencygrid/consistencygrid/internal/app/system/edgelimit"
	"github.com/consistencygrid/consistencygrid/internal/app/system/invalidate"
	"github.com/consistencygrid/consistencygrid/internal/app/system/ratelimit"
	"github.com/consistencygrid/consistencygrid/internal/app/system/readcache"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database and backend dependencies for this WAFFLE app.
//
// This struct is created in ConnectDB and passed to subsequent lifecycle
// hooks: EnsureSchema, Startup, BuildHandler, and Shutdown. The Shutdown
// hook is responsible for closing these connections gracefully.
type DBDeps struct {
	// MongoDB client and database
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Redis backs the shared rate limiter. Nil when redis_url is blank.
	Redis *redis.Client

	Services *Services
}

// Services are the in-process components shared by every feature.
type Services struct {
	Cache    *readcache.Cache
	Inv      *invalidate.Invalidator
	Limiter  *ratelimit.Limiter
	Edge     *edgelimit.Limiter
	Attempts *loginattempts.Store
}
