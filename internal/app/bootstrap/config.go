// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/consistencygrid/consistencygrid/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "CONSISTENCYGRID"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: CONSISTENCYGRID_MONGO_URI, CONSISTENCYGRID_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "consistencygrid", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "redis_url", Default: "", Desc: "Redis URL for shared rate limiting (blank keeps limits in memory)"},
	{Name: "db_timeout_short", Default: "5s", Desc: "Deadline for single-document database calls"},
	{Name: "db_timeout_medium", Default: "10s", Desc: "Deadline for transactions and listings"},
	{Name: "db_timeout_ping", Default: "2s", Desc: "Deadline for health-check pings"},

	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "consistencygrid-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie max age (e.g., 24h, 720h)"},
	{Name: "session_idle_time", Default: "72h", Desc: "Close tracked sessions idle this long"},

	// Read-through cache
	{Name: "cache_ttl", Default: "60s", Desc: "Read cache entry lifetime"},
	{Name: "cache_max_entries", Default: 50000, Desc: "Read cache entry cap (0 = unbounded)"},
	{Name: "cache_single_flight", Default: false, Desc: "Collapse concurrent cache misses per key"},

	// Mutation rate limits
	{Name: "rate_limit_window", Default: "1m", Desc: "Sliding window for mutation rate limits"},
	{Name: "rate_limit_habit_toggle", Default: 200, Desc: "Habit toggles per window"},
	{Name: "rate_limit_goal_create", Default: 50, Desc: "Goal creations per window"},
	{Name: "rate_limit_settings", Default: 20, Desc: "Settings saves per window"},
	{Name: "rate_limit_default", Default: 60, Desc: "Other mutations per window"},

	// Edge limiter
	{Name: "edge_limit_per_minute", Default: 30, Desc: "Signup/login requests per minute per IP"},
	{Name: "edge_limit_burst", Default: 10, Desc: "Signup/login burst per IP"},

	// Login lockout
	{Name: "login_max_attempts", Default: 5, Desc: "Failed sign-ins before lockout"},
	{Name: "login_window", Default: "15m", Desc: "Window for counting failed sign-ins"},
	{Name: "login_lockout", Default: "15m", Desc: "Lockout duration after too many failures"},

	{Name: "csrf_key", Default: "dev-only-csrf-key-please-change-0123456789", Desc: "CSRF token signing key (32+ chars in production)"},

	// Payments
	{Name: "payment_api_key", Default: "", Desc: "Bearer token(s) expected on the payment webhook, comma-separated during rotation"},
	{Name: "payment_order_ttl", Default: "24h", Desc: "Expire pending payment orders older than this"},
	{Name: "ledger_retention", Default: "720h", Desc: "Keep webhook ledger entries this long"},

	// Admin seeding
	{Name: "seed_admin_email", Default: "", Desc: "Email of an admin account to create or promote at startup"},
	{Name: "seed_admin_name", Default: "Admin", Desc: "Display name for a newly created seed admin"},
	{Name: "seed_admin_password", Default: "", Desc: "Password for a newly created seed admin"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig reads .env and config files, then
// CONSISTENCYGRID_* environment variables, then flags, in increasing
// precedence.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		RedisURL:         appValues.String("redis_url"),

		DBTimeoutShort:  appValues.Duration("db_timeout_short", timeouts.DefaultShort),
		DBTimeoutMedium: appValues.Duration("db_timeout_medium", timeouts.DefaultMedium),
		DBTimeoutPing:   appValues.Duration("db_timeout_ping", timeouts.DefaultPing),

		SessionKey:      appValues.String("session_key"),
		SessionName:     appValues.String("session_name"),
		SessionDomain:   appValues.String("session_domain"),
		SessionMaxAge:   appValues.Duration("session_max_age", 720*time.Hour),
		SessionIdleTime: appValues.Duration("session_idle_time", 72*time.Hour),

		CacheTTL:          appValues.Duration("cache_ttl", 60*time.Second),
		CacheMaxEntries:   appValues.Int("cache_max_entries"),
		CacheSingleFlight: appValues.Bool("cache_single_flight"),

		RateLimitWindow:      appValues.Duration("rate_limit_window", time.Minute),
		RateLimitHabitToggle: appValues.Int("rate_limit_habit_toggle"),
		RateLimitGoalCreate:  appValues.Int("rate_limit_goal_create"),
		RateLimitSettings:    appValues.Int("rate_limit_settings"),
		RateLimitDefault:     appValues.Int("rate_limit_default"),

		EdgeLimitPerMinute: appValues.Int("edge_limit_per_minute"),
		EdgeLimitBurst:     appValues.Int("edge_limit_burst"),

		LoginMaxAttempts: appValues.Int("login_max_attempts"),
		LoginWindow:      appValues.Duration("login_window", 15*time.Minute),
		LoginLockout:     appValues.Duration("login_lockout", 15*time.Minute),

		CSRFKey: appValues.String("csrf_key"),

		PaymentAPIKey:   appValues.String("payment_api_key"),
		PaymentOrderTTL: appValues.Duration("payment_order_ttl", 24*time.Hour),
		LedgerRetention: appValues.Duration("ledger_retention", 720*time.Hour),

		SeedAdminEmail:    appValues.String("seed_admin_email"),
		SeedAdminName:     appValues.String("seed_admin_name"),
		SeedAdminPassword: appValues.String("seed_admin_password"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if appCfg.RedisURL != "" {
		if _, err := redis.ParseURL(appCfg.RedisURL); err != nil {
			logger.Error("invalid Redis URL", zap.Error(err))
			return fmt.Errorf("invalid Redis URL: %w", err)
		}
	}

	if appCfg.RateLimitWindow <= 0 {
		return errors.New("rate_limit_window must be positive")
	}
	for name, n := range map[string]int{
		"rate_limit_habit_toggle": appCfg.RateLimitHabitToggle,
		"rate_limit_goal_create":  appCfg.RateLimitGoalCreate,
		"rate_limit_settings":     appCfg.RateLimitSettings,
		"rate_limit_default":      appCfg.RateLimitDefault,
	} {
		if n <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, n)
		}
	}

	if appCfg.SeedAdminEmail != "" && appCfg.SeedAdminPassword == "" {
		logger.Warn("seed_admin_email is set without seed_admin_password; a new admin will not be able to sign in")
	}

	if coreCfg.Env == "prod" && appCfg.PaymentAPIKey == "" {
		logger.Warn("payment_api_key is not set; the payment webhook will reject every call")
	}

	timeouts.Configure(timeouts.Config{
		Ping:   appCfg.DBTimeoutPing,
		Short:  appCfg.DBTimeoutShort,
		Medium: appCfg.DBTimeoutMedium,
	})

	return nil
}
