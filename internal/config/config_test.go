package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("default addr %q", cfg.HTTPAddr)
	}
	if cfg.LockWait != 2*time.Second {
		t.Fatalf("default lock wait %s", cfg.LockWait)
	}
	if cfg.AuditSampleRate != 1.0 {
		t.Fatalf("default sample rate %v", cfg.AuditSampleRate)
	}
	if cfg.ExportPageSize != 500 {
		t.Fatalf("default export page %d", cfg.ExportPageSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CASESHARE_HTTP_ADDR", ":9090")
	t.Setenv("CASESHARE_LOCK_WAIT", "750ms")
	t.Setenv("CASESHARE_AUDIT_SAMPLE_RATE", "0.25")
	t.Setenv("CASESHARE_RATE_LIMIT_RPS", "5")

	cfg := Load()
	if cfg.HTTPAddr != ":9090" {
		t.Fatalf("addr %q", cfg.HTTPAddr)
	}
	if cfg.LockWait != 750*time.Millisecond {
		t.Fatalf("lock wait %s", cfg.LockWait)
	}
	if cfg.AuditSampleRate != 0.25 {
		t.Fatalf("sample rate %v", cfg.AuditSampleRate)
	}
	if cfg.RateLimitPerSecond != 5 {
		t.Fatalf("rps %d", cfg.RateLimitPerSecond)
	}
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	t.Setenv("CASESHARE_LOCK_WAIT", "soon")
	t.Setenv("CASESHARE_AUDIT_SAMPLE_RATE", "lots")
	t.Setenv("CASESHARE_RATE_LIMIT_RPS", "many")

	cfg := Load()
	if cfg.LockWait != 2*time.Second {
		t.Fatalf("lock wait %s", cfg.LockWait)
	}
	if cfg.AuditSampleRate != 1.0 {
		t.Fatalf("sample rate %v", cfg.AuditSampleRate)
	}
	if cfg.RateLimitPerSecond != 20 {
		t.Fatalf("rps %d", cfg.RateLimitPerSecond)
	}
}
