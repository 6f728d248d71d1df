package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/stream"
	"github.com/modelrelay/modelrelay/internal/utils/clientcache"
)

// anthropicMaxTokens is the MaxTokens sent when the request omits one; the
// Anthropic API requires the field.
const anthropicMaxTokens = 4096

type AnthropicAdapter struct {
	cfg     models.ProviderConfig
	clients *clientcache.Cache[*anthropic.Client]
}

var anthropicModelIDs = []string{
	"claude-sonnet-4-20250514",
	"claude-3-7-sonnet-20250219",
	"claude-3-5-haiku-20241022",
}

func NewAnthropicAdapter(cfg models.ProviderConfig) *AnthropicAdapter {
	return &AnthropicAdapter{
		cfg:     cfg,
		clients: clientcache.NewCache[*anthropic.Client](),
	}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) DefaultModel() string {
	if a.cfg.DefaultModel != "" {
		return a.cfg.DefaultModel
	}
	return anthropicModelIDs[0]
}

func (a *AnthropicAdapter) Models() []models.ModelInfo {
	return modelInfos("anthropic", anthropicModelIDs)
}

func (a *AnthropicAdapter) client(streaming bool) (*anthropic.Client, error) {
	key := "sync"
	if streaming {
		key = "stream"
	}
	return a.clients.GetOrCreate(key, func() (*anthropic.Client, error) {
		opts := []option.RequestOption{
			option.WithAPIKey(a.cfg.APIKey),
		}
		if a.cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(a.cfg.BaseURL))
		}
		if !streaming {
			opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: callTimeout(a.cfg.TimeoutMs)}))
		}
		client := anthropic.NewClient(opts...)
		return &client, nil
	})
}

// buildParams splits system messages out of the turn list; Anthropic takes
// them as a separate field.
func (a *AnthropicAdapter) buildParams(req *models.ChatCompletionRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = a.DefaultModel()
	}

	var system []string
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleSystem:
			system = append(system, m.Content)
		case models.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages:  msgs,
	}
	if req.MaxTokens != nil {
		params.MaxTokens = *req.MaxTokens
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	return params
}

func (a *AnthropicAdapter) ChatCompletion(ctx context.Context, req *models.ChatCompletionRequest) (*models.ChatCompletionResponse, error) {
	client, err := a.client(false)
	if err != nil {
		return nil, models.NewInternalError("failed to build provider client", err)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout(a.cfg.TimeoutMs))
	defer cancel()

	message, err := client.Messages.New(ctx, a.buildParams(req))
	if err != nil {
		return nil, a.wrapError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	usage := models.Usage{
		PromptTokens:     message.Usage.InputTokens,
		CompletionTokens: message.Usage.OutputTokens,
		TotalTokens:      message.Usage.InputTokens + message.Usage.OutputTokens,
	}

	out := &models.ChatCompletionResponse{
		ID:      message.ID,
		Object:  "chat.completion",
		Model:   string(message.Model),
		Usage:   &usage,
		Choices: []models.Choice{{
			Message: models.ChatMessage{
				Role:    models.RoleAssistant,
				Content: text.String(),
			},
			FinishReason: mapAnthropicStop(string(message.StopReason)),
		}},
		Provider: "anthropic",
	}
	stampResponse(out)
	return out, nil
}

func (a *AnthropicAdapter) StreamChatCompletion(ctx context.Context, req *models.ChatCompletionRequest) (stream.DeltaStream, error) {
	client, err := a.client(true)
	if err != nil {
		return nil, models.NewInternalError("failed to build provider client", err)
	}

	s := client.Messages.NewStreaming(ctx, a.buildParams(req))
	if err := s.Err(); err != nil {
		return nil, a.wrapError(err)
	}
	return &anthropicStream{s: s}, nil
}

func (a *AnthropicAdapter) wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return models.NewUpstreamError("anthropic", apiErr.StatusCode, "message request failed", err)
	}
	return models.NewUpstreamError("anthropic", 0, "message request failed", err)
}

func mapAnthropicStop(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "":
		return ""
	default:
		return reason
	}
}

type anthropicStream struct {
	s *ssestream.Stream[anthropic.MessageStreamEventUnion]
}

func (a *anthropicStream) Recv() (models.DeltaChunk, error) {
	for a.s.Next() {
		event := a.s.Current()
		switch variant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if variant.Delta.Type == "text_delta" && variant.Delta.Text != "" {
				return models.DeltaChunk{Content: variant.Delta.Text}, nil
			}
		case anthropic.MessageDeltaEvent:
			if variant.Delta.StopReason != "" {
				return models.DeltaChunk{FinishReason: mapAnthropicStop(string(variant.Delta.StopReason))}, nil
			}
		}
	}
	if err := a.s.Err(); err != nil {
		return models.DeltaChunk{}, models.NewUpstreamError("anthropic", 0, "stream failed", err)
	}
	return models.DeltaChunk{}, io.EOF
}

func (a *anthropicStream) Close() error {
	return a.s.Close()
}
