// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New() returns a Config filled with defaults; Load layers file and env on top.
//   - Build* helpers turn validated settings into the components they configure.
//   - External errors are wrapped with ErrLoadConfig or ErrInvalidConfig.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// ShutdownTimeoutMS bounds graceful HTTP shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`
	// SystemMetricsIntervalMS sets how often runtime gauges are refreshed.
	SystemMetricsIntervalMS int `koanf:"system_metrics_interval_ms"`

	// StoreDriver selects the ledger backend: memory, sqlite or postgres.
	StoreDriver string `koanf:"store_driver"`
	// StoreDSN locates the SQL database. Ignored by the memory driver.
	StoreDSN string `koanf:"store_dsn"`
	// StoreMaxOpenConns caps the SQL connection pool; 0 keeps the driver default.
	StoreMaxOpenConns int `koanf:"store_max_open_conns"`
	// AutoMigrate creates or updates tables on startup.
	AutoMigrate bool `koanf:"auto_migrate"`

	// LockBackend selects the per-user guard: memory or redis.
	LockBackend string `koanf:"lock_backend"`
	// LockTimeoutMS bounds how long a submission waits for its user's lock.
	LockTimeoutMS int `koanf:"lock_timeout_ms"`
	// LockShardCount sets the number of shards of the in-process guard.
	LockShardCount int `koanf:"lock_shard_count"`
	// LeaseTTLMS is the expiry of a redis lease.
	LeaseTTLMS    int    `koanf:"lease_ttl_ms"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// DefaultHistoryLimit applies when GET /trust/history has no limit.
	DefaultHistoryLimit int `koanf:"default_history_limit"`
	// MaxHistoryLimit caps GET /trust/history?limit.
	MaxHistoryLimit int `koanf:"max_history_limit"`

	MinScore int `koanf:"min_score"`
	MaxScore int `koanf:"max_score"`
	// Levels replaces the built-in tier table when set.
	Levels []LevelConfig `koanf:"levels"`

	// Events adds event types or overrides built-in ones, keyed by type.
	Events map[string]EventConfig `koanf:"events"`
	// ReplaceDefaultEvents drops the built-in catalog so only Events is recognized.
	ReplaceDefaultEvents bool `koanf:"replace_default_events"`
	// MaxCorrection bounds the magnitude of a score_correction amount.
	MaxCorrection int `koanf:"max_correction"`

	// AuthMode selects how callers are identified: header or jwt.
	AuthMode    string   `koanf:"auth_mode"`
	JWTSecret   string   `koanf:"jwt_secret"`
	JWTIssuer   string   `koanf:"jwt_issuer"`
	JWTLeewayMS int      `koanf:"jwt_leeway_ms"`
	WriterRoles []string `koanf:"writer_roles"`
	// ReaderRoles may read other users' history. Empty means self-only.
	ReaderRoles []string `koanf:"reader_roles"`
}

// LevelConfig is one row of the tier table.
type LevelConfig struct {
	Name string `koanf:"name"`
	Min  int    `koanf:"min"`
	Max  int    `koanf:"max"`
}

// EventConfig defines one event type.
type EventConfig struct {
	Weight      int      `koanf:"weight"`
	ContextKeys []string `koanf:"context_keys"`
	Correction  bool     `koanf:"correction"`
	// WindowSeconds, FreeCount and Factor configure diminishing returns; a
	// zero window disables them.
	WindowSeconds int     `koanf:"window_seconds"`
	FreeCount     int     `koanf:"free_count"`
	Factor        float64 `koanf:"factor"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		ShutdownTimeoutMS:       10_000,
		SystemMetricsIntervalMS: 10_000,
		StoreDriver:             "sqlite",
		StoreDSN:                "data/trust.db",
		AutoMigrate:             true,
		LockBackend:             "memory",
		LockTimeoutMS:           2_000,
		LockShardCount:          32,
		LeaseTTLMS:              5_000,
		RedisAddr:               "localhost:6379",
		DefaultHistoryLimit:     50,
		MaxHistoryLimit:         200,
		MinScore:                0,
		MaxScore:                1000,
		MaxCorrection:           1000,
		AuthMode:                "header",
		JWTLeewayMS:             30_000,
	}
}
