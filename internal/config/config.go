// Package config loads application settings from environment variables,
// applies defaults, and validates the result. It covers the HTTP server,
// logging, storage backends, SPK issuance policy, rate limiting, web
// hardening, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	BackendSQL   = "sql"
	BackendRedis = "redis"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// LogFileConfig enables a rotating file sink next to stdout.
type LogFileConfig struct {
	Path       string // LOG_FILE; empty disables the sink
	MaxSizeMB  int    // LOG_MAX_SIZE_MB
	MaxBackups int    // LOG_MAX_BACKUPS
	MaxAgeDays int    // LOG_MAX_AGE_DAYS
}

// StorageConfig selects the SQL engine and the reservation backend.
type StorageConfig struct {
	Driver             string // sqlite|postgres
	DBPath             string // SQLite file path
	DatabaseURL        string // Postgres DSN
	ReservationBackend string // sql|redis
	RedisURL           string
}

// SPKConfig is the issuance policy for work-order numbers.
type SPKConfig struct {
	SequenceWidth  int            // digits after the MMYY prefix (3 or 4)
	ReservationTTL time.Duration  // sliding claim lifetime
	MaxAttempts    int            // bounded retries on claim collision
	SweepInterval  time.Duration  // expired-reservation cleanup period
	Location       *time.Location // month boundary time zone
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool
	LogFile        LogFileConfig
	SwaggerEnabled bool
	APIBasePath    string

	Storage StorageConfig
	SPK     SPKConfig

	// Rate limiting. The generate endpoint gets its own, tighter bucket
	// because every call consumes a sequence value.
	RateRPS           float64
	RateBurst         int
	GenerateRateRPS   float64
	GenerateRateBurst int

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// IdempotencyTTL bounds how long an Idempotency-Key replays the same SPK.
	IdempotencyTTL time.Duration

	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	ttl := getdur("SPK_RESERVATION_TTL", 15*time.Minute)
	cfg := Config{
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getdur("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),
		LogFile: LogFileConfig{
			Path:       getenv("LOG_FILE", ""),
			MaxSizeMB:  getint("LOG_MAX_SIZE_MB", 100),
			MaxBackups: getint("LOG_MAX_BACKUPS", 5),
			MaxAgeDays: getint("LOG_MAX_AGE_DAYS", 30),
		},
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		Storage: StorageConfig{
			Driver:             strings.ToLower(getenv("DB_DRIVER", DriverSQLite)),
			DBPath:             getenv("DB_PATH", "spk.db"),
			DatabaseURL:        getenv("DATABASE_URL", ""),
			ReservationBackend: strings.ToLower(getenv("RESERVATION_BACKEND", BackendSQL)),
			RedisURL:           getenv("REDIS_URL", "redis://localhost:6379/0"),
		},
		SPK: SPKConfig{
			SequenceWidth:  getint("SPK_SEQUENCE_WIDTH", 4),
			ReservationTTL: ttl,
			MaxAttempts:    getint("SPK_MAX_ATTEMPTS", 5),
			SweepInterval:  getdur("SPK_SWEEP_INTERVAL", 5*time.Minute),
		},

		RateRPS:           getfloat("RATE_RPS", 5.0),
		RateBurst:         getint("RATE_BURST", 10),
		GenerateRateRPS:   getfloat("GENERATE_RATE_RPS", 1.0),
		GenerateRateBurst: getint("GENERATE_RATE_BURST", 5),

		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", ttl),

		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "spk-service"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.Storage.Driver == "postgresql" || cfg.Storage.Driver == "pg" {
		cfg.Storage.Driver = DriverPostgres
	}

	loc, err := time.LoadLocation(getenv("SPK_TIMEZONE", "UTC"))
	if err != nil {
		return cfg, fmt.Errorf("SPK_TIMEZONE: %w", err)
	}
	cfg.SPK.Location = loc

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.ShutdownTimeout <= 0 {
		return cfg, errors.New("SHUTDOWN_TIMEOUT must be > 0")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.Storage.Driver {
	case DriverSQLite:
		if strings.TrimSpace(cfg.Storage.DBPath) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case DriverPostgres:
		if strings.TrimSpace(cfg.Storage.DatabaseURL) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	switch cfg.Storage.ReservationBackend {
	case BackendSQL:
	case BackendRedis:
		if strings.TrimSpace(cfg.Storage.RedisURL) == "" {
			return cfg, errors.New("REDIS_URL is required when RESERVATION_BACKEND=redis")
		}
	default:
		return cfg, errors.New("RESERVATION_BACKEND must be one of: sql, redis")
	}
	if cfg.SPK.SequenceWidth < 3 || cfg.SPK.SequenceWidth > 4 {
		return cfg, errors.New("SPK_SEQUENCE_WIDTH must be 3 or 4")
	}
	if cfg.SPK.ReservationTTL <= 0 {
		return cfg, errors.New("SPK_RESERVATION_TTL must be > 0")
	}
	if cfg.SPK.MaxAttempts < 1 {
		return cfg, errors.New("SPK_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.SPK.SweepInterval <= 0 {
		return cfg, errors.New("SPK_SWEEP_INTERVAL must be > 0")
	}
	if cfg.RateRPS < 0 || cfg.GenerateRateRPS < 0 {
		return cfg, errors.New("RATE_RPS and GENERATE_RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 || cfg.GenerateRateBurst < 1 {
		return cfg, errors.New("RATE_BURST and GENERATE_RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	if cfg.LogFile.Path != "" && (cfg.LogFile.MaxSizeMB <= 0 || cfg.LogFile.MaxBackups < 0 || cfg.LogFile.MaxAgeDays < 0) {
		return cfg, errors.New("LOG_MAX_SIZE_MB must be > 0 and LOG_MAX_BACKUPS/LOG_MAX_AGE_DAYS >= 0")
	}

	return cfg, nil
}

// ---- helpers ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}
