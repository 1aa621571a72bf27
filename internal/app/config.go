package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	LogLevel string

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Statement-level timeout applied to hot-path store calls so a slow query
	// cannot hold a per-user advisory lock indefinitely.
	DBStatementTimeout time.Duration

	// RedisAddr enables the shared cache and the distributed rate-limit
	// counter store when non-empty. Correctness never depends on it.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MetricsAddr string

	// Retry worker cadence for outbound-notification claims.
	RetryInterval time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		LogLevel: EnvString("AUTHCORE_LOG_LEVEL", "info"),

		DatabaseURL:        EnvString("AUTHCORE_DATABASE_URL", ""),
		DBMaxConns:         EnvInt32("AUTHCORE_DB_MAX_CONNS", 10),
		DBMinConns:         EnvInt32("AUTHCORE_DB_MIN_CONNS", 0),
		DBStatementTimeout: EnvDuration("AUTHCORE_DB_STATEMENT_TIMEOUT", 3*time.Second),

		RedisAddr:     EnvString("AUTHCORE_REDIS_ADDR", ""),
		RedisPassword: EnvString("AUTHCORE_REDIS_PASSWORD", ""),
		RedisDB:       EnvInt("AUTHCORE_REDIS_DB", 0),

		MetricsAddr: EnvString("AUTHCORE_METRICS_ADDR", "0.0.0.0:9102"),

		RetryInterval: EnvDuration("AUTHCORE_RETRY_INTERVAL", 5*time.Minute),
	}
}
