package config

import (
	"testing"
	"time"
)

func setenv(t *testing.T, k, v string) {
	t.Helper()
	t.Setenv(k, v)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.APIBasePath != "/api/v1" {
		t.Fatalf("APIBasePath = %q", cfg.APIBasePath)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Fatalf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Lease.TTL != time.Hour || cfg.Lease.SafetyMargin != 10*time.Minute {
		t.Fatalf("lease defaults = %v / %v", cfg.Lease.TTL, cfg.Lease.SafetyMargin)
	}
	if cfg.Workflow.Workers != 4 {
		t.Fatalf("Workflow.Workers = %d, want 4", cfg.Workflow.Workers)
	}
	if cfg.Workflow.ClaimTimeout != 10*time.Minute {
		t.Fatalf("Workflow.ClaimTimeout = %v, want 10m", cfg.Workflow.ClaimTimeout)
	}
	if cfg.Storage.Region != "auto" {
		t.Fatalf("Storage.Region = %q, want auto", cfg.Storage.Region)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setenv(t, "PORT", "9999")
	setenv(t, "SYNTH_URL", "http://synth:8000/generate")
	setenv(t, "SYNTH_TIMEOUT", "45s")
	setenv(t, "RETRY_MAX_ATTEMPTS", "5")
	setenv(t, "RETRY_BASE_DELAY", "1s")
	setenv(t, "RETRY_MAX_DELAY", "10s")
	setenv(t, "LEASE_TTL", "30m")
	setenv(t, "LEASE_SAFETY_MARGIN", "5m")
	setenv(t, "API_BASE_PATH", "v2/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9999" {
		t.Fatalf("Port = %q", cfg.Port)
	}
	if cfg.Synth.URL != "http://synth:8000/generate" || cfg.Synth.Timeout != 45*time.Second {
		t.Fatalf("Synth = %+v", cfg.Synth)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.BaseDelay != time.Second || cfg.Retry.MaxDelay != 10*time.Second {
		t.Fatalf("Retry = %+v", cfg.Retry)
	}
	if cfg.Lease.TTL != 30*time.Minute || cfg.Lease.SafetyMargin != 5*time.Minute {
		t.Fatalf("Lease = %+v", cfg.Lease)
	}
	// Base path is normalized: leading slash added, trailing stripped.
	if cfg.APIBasePath != "/v2" {
		t.Fatalf("APIBasePath = %q, want /v2", cfg.APIBasePath)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		k, v string
	}{
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"zero synth timeout", "SYNTH_TIMEOUT", "0s"},
		{"zero attempts", "RETRY_MAX_ATTEMPTS", "0"},
		{"max below base", "RETRY_MAX_DELAY", "1ms"},
		{"zero workers", "WORKFLOW_WORKERS", "0"},
		{"zero poll", "WORKFLOW_POLL_INTERVAL", "0s"},
		{"zero claim timeout", "WORKFLOW_CLAIM_TIMEOUT", "0s"},
		{"margin >= ttl", "LEASE_SAFETY_MARGIN", "2h"},
		{"bad sample ratio", "OTEL_TRACES_SAMPLER_ARG", "1.5"},
		{"bad burst", "RATE_BURST", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setenv(t, tc.k, tc.v)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", tc.k, tc.v)
			}
		})
	}
}

func TestLoad_WarningAliasAndGinMode(t *testing.T) {
	setenv(t, "LOG_LEVEL", "warning")
	setenv(t, "GIN_MODE", "bogus")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("GinMode = %q, want release", cfg.GinMode)
	}
}

func TestMustLoad_PanicsOnInvalid(t *testing.T) {
	setenv(t, "LOG_LEVEL", "nope")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	_ = MustLoad()
}
