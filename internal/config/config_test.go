package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/modelrelay/modelrelay/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFromFileSubstitutesEnvVars(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-env-value")

	path := writeConfig(t, `
server:
  port: "9090"
providers:
  OpenAI:
    api_key: "${TEST_OPENAI_KEY}"
  deepseek:
    api_key: "${TEST_MISSING_KEY:-fallback-key}"
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("port %q", cfg.Server.Port)
	}
	// Provider keys are normalized to lowercase.
	if got := cfg.GetProviderAPIKey("openai"); got != "sk-env-value" {
		t.Fatalf("openai key %q", got)
	}
	if got := cfg.GetProviderAPIKey("deepseek"); got != "fallback-key" {
		t.Fatalf("deepseek key %q", got)
	}
}

func TestLoadFromFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
providers:
  openai:
    api_key: "k"
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "8080" {
		t.Fatalf("default port %q", cfg.Server.Port)
	}
	if cfg.RateLimit.PerMinute != 60 || cfg.RateLimit.PerHour != 1000 {
		t.Fatalf("rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.Backend != models.RateLimitBackendMemory {
		t.Fatalf("backend %q", cfg.RateLimit.Backend)
	}
	if cfg.Cache.TTLSeconds != 300 || cfg.Cache.MaxEntries != 1024 {
		t.Fatalf("cache defaults: %+v", cfg.Cache)
	}
	if cfg.Auth.HeaderName != "X-API-Key" {
		t.Fatalf("auth header %q", cfg.Auth.HeaderName)
	}
}

func TestLoadFromFileRejectsBadPaths(t *testing.T) {
	if _, err := LoadFromFile("../../../etc/passwd.yaml"); err == nil {
		t.Fatal("expected traversal rejection")
	}
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "config.json")); err == nil {
		t.Fatal("expected extension rejection")
	}
}

func TestValidateRequiresRedisURL(t *testing.T) {
	cfg := &Config{
		Server:    models.ServerConfig{Port: "8080"},
		RateLimit: models.RateLimitConfig{Backend: models.RateLimitBackendRedis},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	vErr, ok := err.(*ValidationError)
	if !ok || len(vErr.MissingFields) != 1 || vErr.MissingFields[0] != "rate_limit.redis_url" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsIncompleteRoutingRules(t *testing.T) {
	cfg := &Config{
		Server: models.ServerConfig{Port: "8080"},
		Routing: models.RoutingConfig{
			Rules: []models.RouteRule{{Prefix: "llama"}},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for rule missing provider")
	}
}
