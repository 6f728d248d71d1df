package models

import (
	"encoding/json"
	"strconv"
)

// Message roles accepted on the wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single conversation turn. Immutable once parsed.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the normalized request accepted by the gateway,
// OpenAI-compatible on the wire. Model may be empty, in which case the
// default provider's default model is used.
type ChatCompletionRequest struct {
	Model            string        `json:"model,omitempty"`
	Messages         []ChatMessage `json:"messages"`
	ConversationID   *uint         `json:"conversation_id,omitempty"`
	Temperature      *float64      `json:"temperature,omitempty"`
	MaxTokens        *int64        `json:"max_tokens,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
}

// Validate checks the request fields the gateway itself cares about.
// Provider-side constraints (model names, token limits) are left to the
// upstream, which reports its own errors.
func (r *ChatCompletionRequest) Validate() error {
	if len(r.Messages) == 0 {
		return NewValidationError("messages must not be empty", nil)
	}
	for i, m := range r.Messages {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return NewValidationError("messages["+strconv.Itoa(i)+"]: unknown role "+m.Role, nil)
		}
		if m.Content == "" {
			return NewValidationError("messages["+strconv.Itoa(i)+"]: content must not be empty", nil)
		}
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return NewValidationError("temperature must be between 0 and 2", nil)
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return NewValidationError("max_tokens must be positive", nil)
	}
	if r.TopP != nil && (*r.TopP < 0 || *r.TopP > 1) {
		return NewValidationError("top_p must be between 0 and 1", nil)
	}
	if r.FrequencyPenalty != nil && (*r.FrequencyPenalty < -2 || *r.FrequencyPenalty > 2) {
		return NewValidationError("frequency_penalty must be between -2 and 2", nil)
	}
	if r.PresencePenalty != nil && (*r.PresencePenalty < -2 || *r.PresencePenalty > 2) {
		return NewValidationError("presence_penalty must be between -2 and 2", nil)
	}
	return nil
}

// Usage carries flat integer token accounting. Provider-specific integer
// fields (e.g. DeepSeek cache-hit counters) survive in Extra; nested usage
// objects from a provider never reach this type.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`

	Extra map[string]int64 `json:"-"`
}

// MarshalJSON flattens Extra into the usage object so clients see one level
// of integer fields regardless of provider.
func (u Usage) MarshalJSON() ([]byte, error) {
	out := make(map[string]int64, 3+len(u.Extra))
	for k, v := range u.Extra {
		out[k] = v
	}
	out["prompt_tokens"] = u.PromptTokens
	out["completion_tokens"] = u.CompletionTokens
	out["total_tokens"] = u.TotalTokens
	return json.Marshal(out)
}

// UnmarshalJSON keeps only integer-valued fields, dropping any nested
// structures a provider attaches to its usage block.
func (u *Usage) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = NormalizeUsageFields(raw)
	return nil
}

// NormalizeUsageFields filters a raw usage object down to its integer
// fields. Known fields populate the named counters; other integers are
// passed through additively. Nested objects, strings and fractional values
// are discarded without error.
func NormalizeUsageFields(raw map[string]json.RawMessage) Usage {
	var u Usage
	for k, v := range raw {
		var n int64
		if err := json.Unmarshal(v, &n); err != nil {
			continue
		}
		switch k {
		case "prompt_tokens":
			u.PromptTokens = n
		case "completion_tokens":
			u.CompletionTokens = n
		case "total_tokens":
			u.TotalTokens = n
		default:
			if u.Extra == nil {
				u.Extra = make(map[string]int64)
			}
			u.Extra[k] = n
		}
	}
	return u
}

// Choice is one completion alternative in a normalized response.
type Choice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// ChatCompletionResponse is the normalized response shape returned to
// callers for non-streaming requests, and the value stored in the response
// cache.
type ChatCompletionResponse struct {
	ID             string   `json:"id"`
	Object         string   `json:"object"`
	Created        int64    `json:"created"`
	Model          string   `json:"model"`
	Choices        []Choice `json:"choices"`
	Usage          *Usage   `json:"usage,omitempty"`
	Provider       string   `json:"provider,omitempty"`
	ConversationID *uint    `json:"conversation_id,omitempty"`
}

// FirstContent returns the content of the first choice, or "".
func (r *ChatCompletionResponse) FirstContent() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// DeltaChunk is one increment of a streamed completion as produced by an
// adapter's streaming call.
type DeltaChunk struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// ChunkDelta and ChunkChoice shape the SSE frames emitted to clients.
type ChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChatCompletionChunk is the normalized streaming frame written as a
// `data:` SSE event.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ModelInfo describes one model in the aggregated catalogue.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the response body of GET /v1/models.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}
