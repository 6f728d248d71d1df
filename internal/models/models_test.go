package models

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestChatCompletionRequestValidate(t *testing.T) {
	valid := ChatCompletionRequest{
		Model:    "gpt-4o",
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		req  ChatCompletionRequest
	}{
		{"no messages", ChatCompletionRequest{Model: "gpt-4o"}},
		{"empty role", ChatCompletionRequest{Messages: []ChatMessage{{Content: "hi"}}}},
		{"bad role", ChatCompletionRequest{Messages: []ChatMessage{{Role: "robot", Content: "hi"}}}},
		{"empty content", ChatCompletionRequest{Messages: []ChatMessage{{Role: RoleUser}}}},
		{"frequency_penalty too high", penaltyRequest(2.5, 0)},
		{"frequency_penalty too low", penaltyRequest(-2.5, 0)},
		{"presence_penalty too high", penaltyRequest(0, 2.5)},
		{"presence_penalty too low", penaltyRequest(0, -2.5)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			var appErr *AppError
			if !errors.As(err, &appErr) || appErr.Type != ErrorTypeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func penaltyRequest(frequency, presence float64) ChatCompletionRequest {
	req := ChatCompletionRequest{
		Messages: []ChatMessage{{Role: RoleUser, Content: "hi"}},
	}
	if frequency != 0 {
		req.FrequencyPenalty = &frequency
	}
	if presence != 0 {
		req.PresencePenalty = &presence
	}
	return req
}

func TestUsageJSONRoundTrip(t *testing.T) {
	u := Usage{
		PromptTokens:     10,
		CompletionTokens: 20,
		TotalTokens:      30,
		Extra:            map[string]int64{"prompt_cache_hit_tokens": 4},
	}

	raw, err := json.Marshal(&u)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"prompt_cache_hit_tokens":4`) {
		t.Fatalf("extra fields not flattened: %s", raw)
	}

	var back Usage
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back.TotalTokens != 30 || back.Extra["prompt_cache_hit_tokens"] != 4 {
		t.Fatalf("round trip: %+v", back)
	}
}

func TestUsageUnmarshalDropsNonIntegerFields(t *testing.T) {
	raw := `{"prompt_tokens":5,"completion_tokens":6,"total_tokens":11,` +
		`"system_fingerprint":"fp_abc","prompt_tokens_details":{"cached_tokens":2}}`

	var u Usage
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatal(err)
	}
	if u.PromptTokens != 5 || u.TotalTokens != 11 {
		t.Fatalf("counts: %+v", u)
	}
	if _, ok := u.Extra["system_fingerprint"]; ok {
		t.Fatal("string field should have been dropped")
	}
	if _, ok := u.Extra["prompt_tokens_details"]; ok {
		t.Fatal("nested object should have been dropped")
	}
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(key, "sk-") {
		t.Fatalf("key prefix: %q", key)
	}

	other, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if key == other {
		t.Fatal("keys must be unique")
	}

	if HashAPIKey(key) == HashAPIKey(other) {
		t.Fatal("hashes must differ")
	}
	if len(ExtractKeyPrefix(key)) != 12 {
		t.Fatalf("prefix length: %q", ExtractKeyPrefix(key))
	}
}

func TestAPIKeyExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if (&APIKey{}).Expired(now) {
		t.Fatal("key without expiry must not expire")
	}
	if (&APIKey{ExpiresAt: &future}).Expired(now) {
		t.Fatal("future expiry must not be expired")
	}
	if !(&APIKey{ExpiresAt: &past}).Expired(now) {
		t.Fatal("past expiry must be expired")
	}
}

func TestAppErrorStatusCodes(t *testing.T) {
	cases := []struct {
		err  *AppError
		want int
	}{
		{NewValidationError("bad", nil), http.StatusBadRequest},
		{NewAuthenticationError("no"), http.StatusUnauthorized},
		{NewNotFoundError("missing"), http.StatusNotFound},
		{NewRateLimitError("slow down"), http.StatusTooManyRequests},
		{NewAdapterConfigError("openai", "no key"), http.StatusInternalServerError},
		{NewUpstreamError("openai", 400, "bad upstream", nil), http.StatusBadGateway},
		{NewInternalError("boom", nil), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.err.GetStatusCode(); got != tc.want {
			t.Fatalf("%s: status %d, want %d", tc.err.Type, got, tc.want)
		}
	}
}

func TestSanitizeErrorHidesCauses(t *testing.T) {
	appErr := SanitizeError(NewInternalError("db write failed", errors.New("pq: secret dsn")))
	if appErr.Cause != nil {
		t.Fatal("cause must be stripped")
	}

	generic := SanitizeError(errors.New("raw failure detail"))
	if generic.Type != ErrorTypeInternal || strings.Contains(generic.Message, "raw failure") {
		t.Fatalf("raw error leaked: %+v", generic)
	}
}
