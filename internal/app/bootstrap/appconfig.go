// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// WAFFLE's CoreConfig covers ports, TLS, logging, CORS and request limits.
// AppConfig covers everything specific to ConsistencyGrid. The struct is
// passed to most lifecycle hooks.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Redis backs the shared rate limiter. Blank keeps limiter state in memory.
	RedisURL string

	// Per-call database deadlines, see the timeouts package.
	DBTimeoutShort  time.Duration
	DBTimeoutMedium time.Duration
	DBTimeoutPing   time.Duration

	// Session management configuration
	SessionKey      string        // Secret key for signing session cookies (must be strong in production)
	SessionName     string        // Cookie name for sessions (default: consistencygrid-session)
	SessionDomain   string        // Cookie domain (blank means current host)
	SessionMaxAge   time.Duration // Maximum session cookie lifetime (default: 720h)
	SessionIdleTime time.Duration // Tracked sessions idle this long are closed (default: 72h)

	// Read-through cache
	CacheTTL          time.Duration // Entry lifetime (default: 60s)
	CacheMaxEntries   int           // 0 means unbounded
	CacheSingleFlight bool          // Collapse concurrent misses per key

	// Mutation rate limits (requests per window, per user and action)
	RateLimitWindow      time.Duration
	RateLimitHabitToggle int
	RateLimitGoalCreate  int
	RateLimitSettings    int
	RateLimitDefault     int

	// Edge limiter on signup/login, per client IP
	EdgeLimitPerMinute int
	EdgeLimitBurst     int

	// Failed sign-in lockout, per email
	LoginMaxAttempts int
	LoginWindow      time.Duration
	LoginLockout     time.Duration

	// CSRF protection configuration
	CSRFKey string // Secret key for CSRF token signing (32 bytes, must be strong in production)

	// PaymentAPIKey is the bearer token the payment gateway presents on the
	// webhook. Blank rejects every webhook call.
	PaymentAPIKey   string
	PaymentOrderTTL time.Duration // Pending orders older than this are expired (default: 24h)
	LedgerRetention time.Duration // Webhook ledger entries are kept this long (default: 720h)

	// Admin seeding: when SeedAdminEmail is set, that account is created
	// (or promoted) with the admin role at startup.
	SeedAdminEmail    string
	SeedAdminName     string
	SeedAdminPassword string
}
