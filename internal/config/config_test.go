package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose")
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBasePath != "/api/v1" || cfg.Port != "8080" {
		t.Fatalf("server defaults unexpected: %+v", cfg)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.ReservationBackend != BackendSQL || cfg.Storage.DBPath != "spk.db" {
		t.Fatalf("storage defaults unexpected: %+v", cfg.Storage)
	}
	if cfg.SPK.SequenceWidth != 4 || cfg.SPK.ReservationTTL != 15*time.Minute || cfg.SPK.MaxAttempts != 5 || cfg.SPK.SweepInterval != 5*time.Minute {
		t.Fatalf("spk defaults unexpected: %+v", cfg.SPK)
	}
	if cfg.SPK.Location == nil || cfg.SPK.Location.String() != "UTC" {
		t.Fatalf("expected UTC location by default, got %v", cfg.SPK.Location)
	}
	// Idempotency window follows the reservation TTL unless set.
	if cfg.IdempotencyTTL != cfg.SPK.ReservationTTL {
		t.Fatalf("IdempotencyTTL = %v, want %v", cfg.IdempotencyTTL, cfg.SPK.ReservationTTL)
	}
	if cfg.LogFile.Path != "" {
		t.Fatalf("file logging should be off by default")
	}
}

func TestLoad_Success_Overrides(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("GIN_MODE", "weird") // -> release
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("LOG_FILE", "/tmp/spk.log")
	t.Setenv("LOG_MAX_SIZE_MB", "10")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/v2/")

	t.Setenv("DB_DRIVER", "PostgreSQL")
	t.Setenv("DATABASE_URL", "postgres://spk:spk@db:5432/spk?sslmode=disable")
	t.Setenv("RESERVATION_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	t.Setenv("SPK_SEQUENCE_WIDTH", "3")
	t.Setenv("SPK_RESERVATION_TTL", "20m")
	t.Setenv("SPK_MAX_ATTEMPTS", "7")
	t.Setenv("SPK_SWEEP_INTERVAL", "1m")
	t.Setenv("SPK_TIMEZONE", "Asia/Jakarta")

	t.Setenv("RATE_RPS", "x") // -> default 5.0
	t.Setenv("GENERATE_RATE_RPS", "0.5")
	t.Setenv("GENERATE_RATE_BURST", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://erp.example , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("IDEMPOTENCY_TTL", "1h")
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != "8088" || cfg.ReadTimeout != 2*time.Second || cfg.ShutdownTimeout != 3*time.Second || cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api/v2" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}
	if cfg.LogFile.Path != "/tmp/spk.log" || cfg.LogFile.MaxSizeMB != 10 {
		t.Fatalf("log file unexpected: %+v", cfg.LogFile)
	}
	if cfg.Storage.Driver != DriverPostgres || cfg.Storage.ReservationBackend != BackendRedis || cfg.Storage.RedisURL != "redis://cache:6379/1" {
		t.Fatalf("storage unexpected: %+v", cfg.Storage)
	}
	if cfg.SPK.SequenceWidth != 3 || cfg.SPK.ReservationTTL != 20*time.Minute || cfg.SPK.MaxAttempts != 7 || cfg.SPK.SweepInterval != time.Minute {
		t.Fatalf("spk unexpected: %+v", cfg.SPK)
	}
	if cfg.SPK.Location.String() != "Asia/Jakarta" {
		t.Fatalf("location unexpected: %v", cfg.SPK.Location)
	}
	if cfg.RateRPS != 5.0 || cfg.GenerateRateRPS != 0.5 || cfg.GenerateRateBurst != 2 {
		t.Fatalf("rate limiting unexpected: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://erp.example", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.IdempotencyTTL != time.Hour {
		t.Fatalf("security/idempotency unexpected: %+v", cfg)
	}
	if !cfg.OTEL.Enabled || cfg.OTEL.SampleRatio != 0.25 || cfg.OTEL.ServiceName != "spk-service" {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty port", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"shutdown", map[string]string{"SHUTDOWN_TIMEOUT": "-1s"}, "SHUTDOWN_TIMEOUT"},
		{"header bytes", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"db path", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"driver", map[string]string{"DB_DRIVER": "oracle"}, "DB_DRIVER"},
		{"postgres url", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"backend", map[string]string{"RESERVATION_BACKEND": "memcached"}, "RESERVATION_BACKEND"},
		{"width low", map[string]string{"SPK_SEQUENCE_WIDTH": "2"}, "SPK_SEQUENCE_WIDTH"},
		{"width high", map[string]string{"SPK_SEQUENCE_WIDTH": "6"}, "SPK_SEQUENCE_WIDTH"},
		{"ttl", map[string]string{"SPK_RESERVATION_TTL": "0s"}, "SPK_RESERVATION_TTL"},
		{"attempts", map[string]string{"SPK_MAX_ATTEMPTS": "0"}, "SPK_MAX_ATTEMPTS"},
		{"sweep", map[string]string{"SPK_SWEEP_INTERVAL": "-5m"}, "SPK_SWEEP_INTERVAL"},
		{"timezone", map[string]string{"SPK_TIMEZONE": "Mars/Olympus"}, "SPK_TIMEZONE"},
		{"rate rps", map[string]string{"GENERATE_RATE_RPS": "-1"}, "RATE_RPS"},
		{"rate burst", map[string]string{"RATE_BURST": "0"}, "RATE_BURST"},
		{"hsts", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"otel ratio", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
		{"log file size", map[string]string{"LOG_FILE": "x.log", "LOG_MAX_SIZE_MB": "0"}, "LOG_MAX_SIZE_MB"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestHelpers_Parsing(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}
	t.Setenv("I_SPACES", " 42 ")
	if getint("I_SPACES", 0) != 42 {
		t.Fatalf("getint should trim spaces")
	}
	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("B_OFF", "Off")
	if getbool("B_OFF", true) {
		t.Fatalf("getbool(Off) should be false")
	}
	t.Setenv("B_JUNK", "maybe")
	if !getbool("B_JUNK", true) {
		t.Fatalf("getbool should fall back to default on junk")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	if got := splitCSV(" a, ,b ,  c  ,"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("splitCSV mismatch: %#v", got)
	}
	cases := map[string]string{
		"":      "/",
		"v1":    "/v1",
		"/v1/":  "/v1",
		" / ":   "/",
		"///":   "/",
		"/a/b/": "/a/b",
	}
	for in, want := range cases {
		if got := normalizeBasePath(in); got != want {
			t.Fatalf("normalizeBasePath(%q) = %q, want %q", in, got, want)
		}
	}
}
