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

	// RedisAddr enables the shared token blacklist and rate limiter. When
	// empty, both fall back to in-process implementations.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Token verification (PASETO v4.public). Issuance lives in the identity
	// service; this server only holds the public key.
	TokenIssuer       string
	TokenPublicKeyHex string
	TokenClockSkew    time.Duration

	BlacklistSweep time.Duration

	// Per-user request budget for the chat REST endpoints.
	RateLimit  int
	RateWindow time.Duration

	WSOriginRequired   bool
	WSAllowedOrigins   []string
	WSStrictMembership bool
	WSSendQueue        int
	WSWriteTimeout     time.Duration
	WSReadIdleTimeout  time.Duration
	WSHeartbeat        time.Duration
	WSHeartbeatTimeout time.Duration
	WSRateEvents       int
	WSRateWindow       time.Duration

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("RIPPLE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("RIPPLE_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("RIPPLE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("RIPPLE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("RIPPLE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("RIPPLE_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("RIPPLE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("RIPPLE_DATABASE_URL", ""),
		DBSchema:    EnvString("RIPPLE_DB_SCHEMA", "ripple"),
		DBMaxConns:  EnvInt32("RIPPLE_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("RIPPLE_DB_MIN_CONNS", 0),

		RedisAddr:     EnvString("RIPPLE_REDIS_ADDR", ""),
		RedisPassword: EnvString("RIPPLE_REDIS_PASSWORD", ""),
		RedisDB:       EnvInt("RIPPLE_REDIS_DB", 0),

		TokenIssuer:       EnvString("RIPPLE_TOKEN_ISSUER", "ripple-identity"),
		TokenPublicKeyHex: EnvString("RIPPLE_TOKEN_PUBLIC_KEY", ""),
		TokenClockSkew:    EnvDuration("RIPPLE_TOKEN_CLOCK_SKEW", 30*time.Second),

		BlacklistSweep: EnvDuration("RIPPLE_BLACKLIST_SWEEP", time.Hour),

		RateLimit:  EnvInt("RIPPLE_RATE_LIMIT", 300),
		RateWindow: EnvDuration("RIPPLE_RATE_WINDOW", time.Minute),

		WSOriginRequired:   EnvBool("RIPPLE_WS_ORIGIN_REQUIRED", true),
		WSAllowedOrigins:   EnvCSV("RIPPLE_WS_ALLOWED_ORIGINS", "http://localhost,http://127.0.0.1"),
		WSStrictMembership: EnvBool("RIPPLE_WS_STRICT_MEMBERSHIP", false),
		WSSendQueue:        EnvInt("RIPPLE_WS_SEND_QUEUE", 128),
		WSWriteTimeout:     EnvDuration("RIPPLE_WS_WRITE_TIMEOUT", 10*time.Second),
		WSReadIdleTimeout:  EnvDuration("RIPPLE_WS_READ_IDLE_TIMEOUT", 2*time.Minute),
		WSHeartbeat:        EnvDuration("RIPPLE_WS_HEARTBEAT_INTERVAL", 25*time.Second),
		WSHeartbeatTimeout: EnvDuration("RIPPLE_WS_HEARTBEAT_TIMEOUT", 5*time.Second),
		WSRateEvents:       EnvInt("RIPPLE_WS_RATE_EVENTS", 120),
		WSRateWindow:       EnvDuration("RIPPLE_WS_RATE_WINDOW", 10*time.Second),

		ReadinessRequireDB: EnvBool("RIPPLE_READINESS_REQUIRE_DB", false),
	}
}
