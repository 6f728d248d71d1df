package providers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/modelrelay/modelrelay/internal/config"
	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/stream"
)

type fakeAdapter struct {
	name string
}

func (f *fakeAdapter) Name() string               { return f.name }
func (f *fakeAdapter) DefaultModel() string       { return f.name + "-default" }
func (f *fakeAdapter) Models() []models.ModelInfo { return nil }

func (f *fakeAdapter) ChatCompletion(context.Context, *models.ChatCompletionRequest) (*models.ChatCompletionResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAdapter) StreamChatCompletion(context.Context, *models.ChatCompletionRequest) (stream.DeltaStream, error) {
	return nil, errors.New("not implemented")
}

func emptyRegistry() *Registry {
	return NewRegistry(&config.Config{})
}

func TestRegistryPrefixResolution(t *testing.T) {
	r := emptyRegistry()
	r.register("openai", &fakeAdapter{name: "openai"})
	r.register("anthropic", &fakeAdapter{name: "anthropic"})
	r.register("gemini", &fakeAdapter{name: "gemini"})
	r.register("deepseek", &fakeAdapter{name: "deepseek"})

	cases := []struct {
		model string
		want  string
	}{
		{"gpt-4o", "openai"},
		{"GPT-4", "openai"},
		{"openai/gpt-5", "openai"},
		{"o1-preview", "openai"},
		{"claude-sonnet-4-20250514", "anthropic"},
		{"gemini-2.5-pro", "gemini"},
		{"deepseek-chat", "deepseek"},
		{"", "deepseek"},
		{"llama-70b", "deepseek"}, // unknown prefixes go to the default
	}

	for _, tc := range cases {
		adapter, err := r.Resolve(tc.model)
		if err != nil {
			t.Errorf("Resolve(%q): %v", tc.model, err)
			continue
		}
		if adapter.Name() != tc.want {
			t.Errorf("Resolve(%q) = %s, want %s", tc.model, adapter.Name(), tc.want)
		}
	}
}

func TestRegistryMissingCredentials(t *testing.T) {
	r := emptyRegistry()
	r.register("deepseek", &fakeAdapter{name: "deepseek"})

	_, err := r.Resolve("claude-3-5-haiku-20241022")
	if err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Type != models.ErrorTypeAdapterConfig {
		t.Errorf("err = %v, want adapter_config AppError", err)
	}
}

func TestRegistryCustomRules(t *testing.T) {
	cfg := &config.Config{
		Routing: models.RoutingConfig{
			Rules:           []models.RouteRule{{Prefix: "my-", Provider: "openai"}},
			DefaultProvider: "openai",
		},
	}
	r := NewRegistry(cfg)
	r.register("openai", &fakeAdapter{name: "openai"})

	adapter, err := r.Resolve("my-finetune-v2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if adapter.Name() != "openai" {
		t.Errorf("custom rule resolved to %s", adapter.Name())
	}

	// Built-in rules are replaced, so a claude model hits the default.
	adapter, err = r.Resolve("claude-3")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if adapter.Name() != "openai" {
		t.Errorf("default fallthrough resolved to %s", adapter.Name())
	}
}

func TestRegistrySkipsProvidersWithoutKeys(t *testing.T) {
	cfg := &config.Config{
		Providers: map[string]models.ProviderConfig{
			"openai":    {APIKey: "sk-test"},
			"anthropic": {},
		},
	}
	r := NewRegistry(cfg)

	adapters := r.Adapters()
	if len(adapters) != 1 {
		t.Fatalf("got %d adapters, want 1", len(adapters))
	}
	if adapters[0].Name() != "openai" {
		t.Errorf("adapter = %s, want openai", adapters[0].Name())
	}
}

func TestNormalizeSDKUsageDropsNested(t *testing.T) {
	raw := `{
		"prompt_tokens": 15,
		"completion_tokens": 7,
		"total_tokens": 22,
		"prompt_cache_hit_tokens": 10,
		"prompt_tokens_details": {"cached_tokens": 10},
		"system_fingerprint": "fp_abc"
	}`

	usage := normalizeSDKUsage(raw)
	if usage == nil {
		t.Fatal("expected usage")
	}
	if usage.PromptTokens != 15 || usage.CompletionTokens != 7 || usage.TotalTokens != 22 {
		t.Errorf("core counters wrong: %+v", usage)
	}
	if usage.Extra["prompt_cache_hit_tokens"] != 10 {
		t.Errorf("integer extra lost: %v", usage.Extra)
	}
	if _, ok := usage.Extra["prompt_tokens_details"]; ok {
		t.Error("nested object leaked into usage")
	}
	if _, ok := usage.Extra["system_fingerprint"]; ok {
		t.Error("string field leaked into usage")
	}
}

func TestOpenAIAdapterBuildParams(t *testing.T) {
	a := NewOpenAIAdapter("deepseek", models.ProviderConfig{
		APIKey:       "sk-test",
		BaseURL:      "https://api.deepseek.com/v1",
		DefaultModel: "deepseek-chat",
	})

	temp := 0.3
	req := &models.ChatCompletionRequest{
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: "be brief"},
			{Role: models.RoleUser, Content: "hi"},
		},
		Temperature: &temp,
	}

	params := a.buildParams(req)
	if string(params.Model) != "deepseek-chat" {
		t.Errorf("model = %s, want default deepseek-chat", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(params.Messages))
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.3 {
		t.Errorf("temperature not carried: %+v", params.Temperature)
	}
}

func TestAnthropicBuildParamsSplitsSystem(t *testing.T) {
	a := NewAnthropicAdapter(models.ProviderConfig{APIKey: "sk-ant"})

	req := &models.ChatCompletionRequest{
		Model: "claude-3-5-haiku-20241022",
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: "be brief"},
			{Role: models.RoleUser, Content: "hi"},
			{Role: models.RoleAssistant, Content: "hello"},
			{Role: models.RoleUser, Content: "bye"},
		},
	}

	params := a.buildParams(req)
	if len(params.System) != 1 || params.System[0].Text != "be brief" {
		t.Errorf("system not extracted: %+v", params.System)
	}
	if len(params.Messages) != 3 {
		t.Errorf("got %d turns, want 3", len(params.Messages))
	}
	if params.MaxTokens != anthropicMaxTokens {
		t.Errorf("MaxTokens = %d, want default %d", params.MaxTokens, anthropicMaxTokens)
	}
}

func TestMapAnthropicStop(t *testing.T) {
	cases := map[string]string{
		"end_turn":      "stop",
		"stop_sequence": "stop",
		"max_tokens":    "length",
		"":              "",
		"tool_use":      "tool_use",
	}
	for in, want := range cases {
		if got := mapAnthropicStop(in); got != want {
			t.Errorf("mapAnthropicStop(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStampResponseFillsMissingIdentity(t *testing.T) {
	resp := &models.ChatCompletionResponse{Object: "chat.completion", Provider: "gemini"}
	stampResponse(resp)

	if !strings.HasPrefix(resp.ID, "chatcmpl-") {
		t.Errorf("ID = %q, want chatcmpl- prefix", resp.ID)
	}
	if resp.Created == 0 {
		t.Error("Created should be stamped when the provider omits it")
	}
}

func TestStampResponseKeepsProviderIdentity(t *testing.T) {
	resp := &models.ChatCompletionResponse{ID: "msg_abc", Created: 1234}
	stampResponse(resp)

	if resp.ID != "msg_abc" {
		t.Errorf("ID = %q, want msg_abc", resp.ID)
	}
	if resp.Created != 1234 {
		t.Errorf("Created = %d, want 1234", resp.Created)
	}
}
