package config

import (
	"os"
	"testing"
	"time"
)

func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { _ = os.Setenv(key, value) })
		}
		_ = os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "API_ADDR", "KEYWORD_CACHE_TTL", "BLOG_WRITER_API_URL", "SESSION_COOKIE", "JOB_CACHE_TTL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":8787" {
		t.Fatalf("expected default addr :8787, got %q", cfg.Addr)
	}
	if cfg.KeywordCacheTTL != 24*time.Hour {
		t.Fatalf("expected default keyword cache ttl 24h, got %s", cfg.KeywordCacheTTL)
	}
	if cfg.JobCacheTTL != 2*time.Second {
		t.Fatalf("expected default job cache ttl 2s, got %s", cfg.JobCacheTTL)
	}
	if cfg.SessionCookie != "sb-access-token" {
		t.Fatalf("unexpected session cookie %q", cfg.SessionCookie)
	}
	if cfg.BlogWriterEnabled() {
		t.Fatal("expected blog writer to be disabled without a base URL")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_ADDR", ":9000")
	t.Setenv("ACCESS_TTL", "30m")
	t.Setenv("BLOG_WRITER_API_URL", "http://writer.internal")
	t.Setenv("BLOG_WRITER_MAX_RETRIES", "5")
	t.Setenv("DATAFORSEO_LOGIN", "login")
	t.Setenv("DATAFORSEO_PASSWORD", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Fatalf("expected addr :9000, got %q", cfg.Addr)
	}
	if cfg.AccessTTL != 30*time.Minute {
		t.Fatalf("expected access ttl 30m, got %s", cfg.AccessTTL)
	}
	if !cfg.BlogWriterEnabled() || cfg.BlogWriterMaxRetries != 5 {
		t.Fatalf("unexpected blog writer config: %+v", cfg)
	}
	if !cfg.KeywordProviderEnabled() {
		t.Fatal("expected keyword provider to be enabled")
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("REFRESH_TTL", "forever")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}
