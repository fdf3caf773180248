package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// MigrateOnStart applies embedded migrations before serving.
	MigrateOnStart bool

	// RedisURL enables the cross-instance broadcast bus and the reminder
	// queue. Empty falls back to in-process implementations.
	RedisURL string

	// WorkerEnabled runs the reminder worker inside this process. Requires
	// RedisURL.
	WorkerEnabled     bool
	WorkerConcurrency int

	ReminderDelay time.Duration
	TokenTTL      time.Duration

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("DWELL_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("DWELL_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("DWELL_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("DWELL_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("DWELL_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("DWELL_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("DWELL_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("DWELL_DATABASE_URL", ""),
		DBSchema:    EnvString("DWELL_DB_SCHEMA", "dwell"),
		DBMaxConns:  EnvInt32("DWELL_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("DWELL_DB_MIN_CONNS", 0),

		MigrateOnStart: EnvBool("DWELL_MIGRATE_ON_START", false),

		RedisURL: EnvString("DWELL_REDIS_URL", ""),

		WorkerEnabled:     EnvBool("DWELL_WORKER_ENABLED", true),
		WorkerConcurrency: EnvInt("DWELL_WORKER_CONCURRENCY", 4),

		ReminderDelay: EnvDuration("DWELL_REMINDER_DELAY", 15*time.Minute),
		TokenTTL:      EnvDuration("DWELL_TOKEN_TTL", 24*time.Hour),

		ReadinessRequireDB: EnvBool("DWELL_READINESS_REQUIRE_DB", false),
	}
}
