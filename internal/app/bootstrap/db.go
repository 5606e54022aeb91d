// internal/app/bootstrap/db.go
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/store/loginattempts"
	"github.com/consistencygrid/consistencygrid/internal/app/system/edgelimit"
	"github.com/consistencygrid/consistencygrid/internal/app/system/indexes"
	"github.com/consistencygrid/consistencygrid/internal/app/system/invalidate"
	"github.com/consistencygrid/consistencygrid/internal/app/system/ratelimit"
	"github.com/consistencygrid/consistencygrid/internal/app/system/readcache"
	"github.com/consistencygrid/consistencygrid/internal/app/system/seeding"
	"github.com/consistencygrid/consistencygrid/internal/app/system/validators"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// redisKeyPrefix namespaces limiter keys in a shared Redis.
const redisKeyPrefix = "consistencygrid:rl:"

// ConnectDB connects to MongoDB and, when configured, Redis, then builds the
// shared services.
//
// WAFFLE calls this after configuration is loaded but before EnsureSchema and
// Startup.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	// Configure MongoDB connection pool
	poolCfg := wafflemongo.DefaultPoolConfig()
	if appCfg.MongoMaxPoolSize > 0 {
		poolCfg.MaxPoolSize = appCfg.MongoMaxPoolSize
	}
	if appCfg.MongoMinPoolSize > 0 {
		poolCfg.MinPoolSize = appCfg.MongoMinPoolSize
	}

	client, err := wafflemongo.ConnectWithPool(ctx, appCfg.MongoURI, appCfg.MongoDatabase, poolCfg)
	if err != nil {
		return DBDeps{}, err
	}

	db := client.Database(appCfg.MongoDatabase)

	logger.Info("connected to MongoDB",
		zap.String("database", appCfg.MongoDatabase),
		zap.Uint64("max_pool_size", poolCfg.MaxPoolSize),
		zap.Uint64("min_pool_size", poolCfg.MinPoolSize),
	)

	var rdb *redis.Client
	if appCfg.RedisURL != "" {
		opts, err := redis.ParseURL(appCfg.RedisURL)
		if err != nil {
			_ = client.Disconnect(ctx)
			return DBDeps{}, fmt.Errorf("invalid Redis URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			_ = client.Disconnect(ctx)
			return DBDeps{}, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		logger.Info("connected to Redis", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	}

	return DBDeps{
		MongoClient:   client,
		MongoDatabase: db,
		Redis:         rdb,
		Services:      buildServices(appCfg, db, rdb, logger),
	}, nil
}

// buildServices wires the cache, invalidator and limiters. A nil rdb keeps
// limiter state in process memory.
func buildServices(appCfg AppConfig, db *mongo.Database, rdb *redis.Client, logger *zap.Logger) *Services {
	cache := readcache.New(readcache.Config{
		TTL:           appCfg.CacheTTL,
		MaxEntries:    appCfg.CacheMaxEntries,
		SingleFlight:  appCfg.CacheSingleFlight,
		SweepInterval: appCfg.CacheTTL,
	}, logger)
	inv := invalidate.New(logger, invalidate.NewCacheTarget(cache))

	window := appCfg.RateLimitWindow
	policies := map[string]ratelimit.Policy{
		ratelimit.ActionHabitToggle:  {Max: appCfg.RateLimitHabitToggle, Window: window},
		ratelimit.ActionGoalCreate:   {Max: appCfg.RateLimitGoalCreate, Window: window},
		ratelimit.ActionSettingsSave: {Max: appCfg.RateLimitSettings, Window: window},
		ratelimit.ActionDefault:      {Max: appCfg.RateLimitDefault, Window: window},
	}

	var store ratelimit.Store
	var pruneEvery time.Duration
	if rdb != nil {
		// Redis keys expire on their own.
		store = ratelimit.NewRedisStore(rdb, redisKeyPrefix)
	} else {
		store = ratelimit.NewMemoryStore(window)
		pruneEvery = window
	}
	limiter := ratelimit.New(store, ratelimit.Config{Policies: policies, PruneInterval: pruneEvery}, logger)

	var edge *edgelimit.Limiter
	if appCfg.EdgeLimitPerMinute > 0 {
		edge = edgelimit.New(float64(appCfg.EdgeLimitPerMinute)/60, appCfg.EdgeLimitBurst, 10*time.Minute, nil, logger)
	}

	return &Services{
		Cache:    cache,
		Inv:      inv,
		Limiter:  limiter,
		Edge:     edge,
		Attempts: loginattempts.New(db, appCfg.LoginMaxAttempts, appCfg.LoginWindow, appCfg.LoginLockout, nil),
	}
}

// EnsureSchema creates collections, validators and indexes, then seeds the
// admin account when one is configured.
//
// The context has a timeout based on coreCfg.IndexBootTimeout, so long-running
// work should respect context cancellation.
func EnsureSchema(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	db := deps.MongoDatabase

	// Collections and validators first so indexes land on existing collections.
	logger.Info("ensuring collections and validators")
	if err := validators.EnsureAll(ctx, db); err != nil {
		logger.Error("failed to ensure validators", zap.Error(err))
		return err
	}

	logger.Info("ensuring database indexes")
	if err := indexes.EnsureAll(ctx, db); err != nil {
		logger.Error("failed to ensure indexes", zap.Error(err))
		return err
	}

	if err := seeding.SeedAdmin(ctx, db, seeding.Admin{
		Email:    appCfg.SeedAdminEmail,
		Name:     appCfg.SeedAdminName,
		Password: appCfg.SeedAdminPassword,
	}, logger); err != nil {
		logger.Error("failed to seed admin user", zap.Error(err))
		return err
	}

	logger.Info("database schema ensured successfully")
	return nil
}
