package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/modelrelay/modelrelay/internal/config"
	"github.com/modelrelay/modelrelay/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: models.ServerConfig{
			Port:        "8080",
			Environment: "test",
			LogLevel:    "error",
		},
		Providers: map[string]models.ProviderConfig{
			"openai": {APIKey: "test-key"},
		},
	}
}

func TestNewRejectsNilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Backend = models.RateLimitBackendRedis
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for redis backend without redis_url")
	}
}

func TestGatewayServesWelcomeAndHealth(t *testing.T) {
	g, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	resp, err := g.App().Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("welcome status %d", resp.StatusCode)
	}

	resp, err = g.App().Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" {
		t.Fatalf("health %q", health.Status)
	}
}

func TestGatewayListsModels(t *testing.T) {
	g, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}

	resp, err := g.App().Test(httptest.NewRequest("GET", "/v1/models", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var list models.ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list.Data) == 0 {
		t.Fatal("expected at least one model from the configured provider")
	}
}

func TestGatewayConversationsRequireKey(t *testing.T) {
	cfg := testConfig()
	cfg.Database = &models.DatabaseConfig{
		Type:     models.SQLite,
		FilePath: filepath.Join(t.TempDir(), "gateway.db"),
	}
	g, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := g.App().Test(httptest.NewRequest("GET", "/v1/conversations/", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status %d, want 401 for anonymous caller", resp.StatusCode)
	}

	var envelope struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Error.Type != "authentication" {
		t.Errorf("error type %q, want authentication", envelope.Error.Type)
	}
}

func TestGatewayAdminRequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.JWTSecret = "test-secret"
	g, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}

	resp, err := g.App().Test(httptest.NewRequest("GET", "/v1/admin/users", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
}
