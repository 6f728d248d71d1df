package cache

import (
	"testing"
	"time"

	"github.com/modelrelay/modelrelay/internal/models"
)

func request(model string, msgs ...models.ChatMessage) *models.ChatCompletionRequest {
	return &models.ChatCompletionRequest{Model: model, Messages: msgs}
}

func msg(role, content string) models.ChatMessage {
	return models.ChatMessage{Role: role, Content: content}
}

func response(id string) *models.ChatCompletionResponse {
	return &models.ChatCompletionResponse{
		ID:      id,
		Object:  "chat.completion",
		Choices: []models.Choice{{Message: msg(models.RoleAssistant, "hi")}},
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	req := request("gpt-4o", msg(models.RoleUser, "hello"))
	a := Fingerprint(req, "client-1")
	b := Fingerprint(request("gpt-4o", msg(models.RoleUser, "hello")), "client-1")
	if a != b {
		t.Errorf("identical requests produced different fingerprints: %s vs %s", a, b)
	}
}

func TestFingerprintClientIsolation(t *testing.T) {
	req := request("gpt-4o", msg(models.RoleUser, "hello"))
	if Fingerprint(req, "client-1") == Fingerprint(req, "client-2") {
		t.Error("different clients must not share a fingerprint")
	}
}

func TestFingerprintMessageOrderMatters(t *testing.T) {
	a := Fingerprint(request("m", msg(models.RoleUser, "one"), msg(models.RoleUser, "two")), "c")
	b := Fingerprint(request("m", msg(models.RoleUser, "two"), msg(models.RoleUser, "one")), "c")
	if a == b {
		t.Error("reordered messages must change the fingerprint")
	}
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// Role/content splits that concatenate identically must still differ.
	a := Fingerprint(request("m", msg("user", "ab")), "c")
	b := Fingerprint(request("m", msg("usera", "b")), "c")
	if a == b {
		t.Error("adjacent fields collided")
	}
}

func TestFingerprintTemperature(t *testing.T) {
	req := request("m", msg(models.RoleUser, "hi"))
	warm := 0.9
	withTemp := *req
	withTemp.Temperature = &warm
	if Fingerprint(req, "c") == Fingerprint(&withTemp, "c") {
		t.Error("temperature must be part of the fingerprint")
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c := New(models.CacheConfig{Enabled: true, TTLSeconds: 60, MaxEntries: 8})

	key := Fingerprint(request("m", msg(models.RoleUser, "hi")), "c")
	if _, ok := c.Get(key); ok {
		t.Fatal("unexpected hit on empty cache")
	}

	c.Set(key, response("resp-1"))
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if got.ID != "resp-1" {
		t.Errorf("got ID %q, want resp-1", got.ID)
	}
}

func TestCacheDisabled(t *testing.T) {
	c := New(models.CacheConfig{Enabled: false})
	c.Set("k", response("r"))
	if _, ok := c.Get("k"); ok {
		t.Error("disabled cache must never hit")
	}
	if c.Enabled() {
		t.Error("Enabled() should report false")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := New(models.CacheConfig{Enabled: true, TTLSeconds: 1, MaxEntries: 8})
	c.Set("k", response("r"))
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(1100 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after TTL")
	}
}

func TestCacheEvictsOldest(t *testing.T) {
	c := New(models.CacheConfig{Enabled: true, TTLSeconds: 300, MaxEntries: 2})
	c.Set("a", response("a"))
	c.Set("b", response("b"))
	c.Set("c", response("c"))

	if _, ok := c.Get("a"); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("newest entry should remain")
	}
}

func TestCacheable(t *testing.T) {
	plain := request("m", msg(models.RoleUser, "hi"))
	if !Cacheable(plain) {
		t.Error("plain request should be cacheable")
	}

	streaming := *plain
	streaming.Stream = true
	if Cacheable(&streaming) {
		t.Error("streaming request must not be cacheable")
	}

	conv := *plain
	id := uint(7)
	conv.ConversationID = &id
	if Cacheable(&conv) {
		t.Error("conversation request must not be cacheable")
	}
}
