// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, the synthesis backend,
// workflow retry budgets, object storage, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-music-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SynthConfig configures the external music synthesis backend.
type SynthConfig struct {
	URL     string        // SYNTH_URL (required)
	Timeout time.Duration // SYNTH_TIMEOUT per-call cap; exceeding it is a transient failure
}

// RetryConfig is the per-step retry budget applied to the transient failure
// class. Exposed as configuration rather than hardcoded constants.
type RetryConfig struct {
	MaxAttempts int           // RETRY_MAX_ATTEMPTS (>= 1)
	BaseDelay   time.Duration // RETRY_BASE_DELAY
	MaxDelay    time.Duration // RETRY_MAX_DELAY backoff cap
}

// WorkflowConfig controls the durable job queue that drives generations.
type WorkflowConfig struct {
	Workers      int           // WORKFLOW_WORKERS concurrent jobs
	PollInterval time.Duration // WORKFLOW_POLL_INTERVAL pending-job sweep cadence
	MaxRuns      int           // WORKFLOW_MAX_RUNS whole-workflow reruns on persistence failure
	ClaimTimeout time.Duration // WORKFLOW_CLAIM_TIMEOUT before an abandoned running job is reclaimed
}

// StorageConfig holds credentials for the S3-compatible object store that
// serves generated audio and cover images (e.g. Cloudflare R2).
type StorageConfig struct {
	Endpoint  string // STORAGE_ENDPOINT, e.g. https://<account>.r2.cloudflarestorage.com
	Region    string // STORAGE_REGION ("auto" for R2)
	Bucket    string // STORAGE_BUCKET
	AccessKey string // STORAGE_ACCESS_KEY_ID
	SecretKey string // STORAGE_SECRET_ACCESS_KEY
}

// LeaseConfig controls signed-URL issuance and cache freshness.
type LeaseConfig struct {
	TTL          time.Duration // LEASE_TTL server-side expiry on issued URLs
	SafetyMargin time.Duration // LEASE_SAFETY_MARGIN refresh this long before expiry
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath        string // SQLite path
	BillingSecret string // shared secret expected on the billing webhook

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Core workflow
	Synth    SynthConfig
	Retry    RetryConfig
	Workflow WorkflowConfig
	Storage  StorageConfig
	Lease    LeaseConfig

	// Observability
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
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:        getenv("DB_PATH", "app.db"),
		BillingSecret: getenv("BILLING_WEBHOOK_SECRET", ""),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Core workflow
		Synth: SynthConfig{
			URL:     getenv("SYNTH_URL", ""),
			Timeout: getdur("SYNTH_TIMEOUT", 2*time.Minute),
		},
		Retry: RetryConfig{
			MaxAttempts: getint("RETRY_MAX_ATTEMPTS", 3),
			BaseDelay:   getdur("RETRY_BASE_DELAY", 500*time.Millisecond),
			MaxDelay:    getdur("RETRY_MAX_DELAY", 30*time.Second),
		},
		Workflow: WorkflowConfig{
			Workers:      getint("WORKFLOW_WORKERS", 4),
			PollInterval: getdur("WORKFLOW_POLL_INTERVAL", 2*time.Second),
			MaxRuns:      getint("WORKFLOW_MAX_RUNS", 3),
			ClaimTimeout: getdur("WORKFLOW_CLAIM_TIMEOUT", 10*time.Minute),
		},
		Storage: StorageConfig{
			Endpoint:  getenv("STORAGE_ENDPOINT", ""),
			Region:    getenv("STORAGE_REGION", "auto"),
			Bucket:    getenv("STORAGE_BUCKET", ""),
			AccessKey: getenv("STORAGE_ACCESS_KEY_ID", ""),
			SecretKey: getenv("STORAGE_SECRET_ACCESS_KEY", ""),
		},
		Lease: LeaseConfig{
			TTL:          getdur("LEASE_TTL", time.Hour),
			SafetyMargin: getdur("LEASE_SAFETY_MARGIN", 10*time.Minute),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-music-backend"),
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
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.Synth.Timeout <= 0 {
		return cfg, errors.New("SYNTH_TIMEOUT must be > 0")
	}
	if cfg.Retry.MaxAttempts < 1 {
		return cfg, errors.New("RETRY_MAX_ATTEMPTS must be >= 1")
	}
	if cfg.Retry.BaseDelay <= 0 || cfg.Retry.MaxDelay < cfg.Retry.BaseDelay {
		return cfg, errors.New("retry delays must satisfy 0 < RETRY_BASE_DELAY <= RETRY_MAX_DELAY")
	}
	if cfg.Workflow.Workers < 1 {
		return cfg, errors.New("WORKFLOW_WORKERS must be >= 1")
	}
	if cfg.Workflow.PollInterval <= 0 {
		return cfg, errors.New("WORKFLOW_POLL_INTERVAL must be > 0")
	}
	if cfg.Workflow.MaxRuns < 1 {
		return cfg, errors.New("WORKFLOW_MAX_RUNS must be >= 1")
	}
	if cfg.Workflow.ClaimTimeout <= 0 {
		return cfg, errors.New("WORKFLOW_CLAIM_TIMEOUT must be > 0")
	}
	if cfg.Lease.TTL <= 0 {
		return cfg, errors.New("LEASE_TTL must be > 0")
	}
	if cfg.Lease.SafetyMargin < 0 || cfg.Lease.SafetyMargin >= cfg.Lease.TTL {
		return cfg, errors.New("LEASE_SAFETY_MARGIN must be >= 0 and smaller than LEASE_TTL")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

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
		if i, err := strconv.Atoi(v); err == nil {
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
		t := strings.TrimSpace(p)
		if t != "" {
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
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
