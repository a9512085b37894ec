package config

// Default values for optional configuration fields.
const (
	DefaultPort              = "8080"
	DefaultRequestTimeoutSec = 10
	DefaultLogLevel          = "info"

	// DefaultTokenAddress is the pump.fun token shown on the landing page.
	DefaultTokenAddress         = "5BYrEaDL7NhFjJ9gmyZqVQoAUBg3PqruqPa7fnsWpump"
	DefaultDexScreenerURL       = "https://api.dexscreener.com"
	DefaultPollIntervalSec      = 15
	DefaultFetchTimeoutSec      = 10
	DefaultMaxRequestsPerMinute = 60
	DefaultBurst                = 5
	DefaultCacheTTLSec          = 5
	DefaultCacheMaxItems        = 1000

	DefaultCSRFPath       = "/api/csrf-token"
	DefaultSignupPath     = "/api/waitlist"
	DefaultWaitlistSource = "landing"

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "token:snapshot"
	DefaultRedisChannel   = "token:snapshot:updates"
	DefaultSnapshotTTLSec = 60

	DefaultDBPort    = 5432
	DefaultDBSSLMode = "prefer"
	DefaultMaxConns  = 4
	DefaultMinConns  = 1
)
