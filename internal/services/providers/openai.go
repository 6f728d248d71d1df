package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/ssestream"
	"github.com/openai/openai-go/v2/shared"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/stream"
	"github.com/modelrelay/modelrelay/internal/utils/clientcache"
)

// OpenAIAdapter serves OpenAI and any OpenAI-compatible endpoint (DeepSeek
// and similar) selected by base URL.
type OpenAIAdapter struct {
	name    string
	cfg     models.ProviderConfig
	clients *clientcache.Cache[*openai.Client]
}

var openaiModelIDs = map[string][]string{
	"openai":   {"gpt-4", "gpt-4-turbo", "gpt-4o", "gpt-3.5-turbo"},
	"deepseek": {"deepseek-chat", "deepseek-coder"},
}

func NewOpenAIAdapter(name string, cfg models.ProviderConfig) *OpenAIAdapter {
	return &OpenAIAdapter{
		name:    name,
		cfg:     cfg,
		clients: clientcache.NewCache[*openai.Client](),
	}
}

func (a *OpenAIAdapter) Name() string { return a.name }

func (a *OpenAIAdapter) DefaultModel() string {
	if a.cfg.DefaultModel != "" {
		return a.cfg.DefaultModel
	}
	if ids := openaiModelIDs[a.name]; len(ids) > 0 {
		return ids[0]
	}
	return "gpt-4o"
}

func (a *OpenAIAdapter) Models() []models.ModelInfo {
	ids := openaiModelIDs[a.name]
	if len(ids) == 0 {
		ids = []string{a.DefaultModel()}
	}
	return modelInfos(a.name, ids)
}

// client returns the cached SDK client. Streaming clients carry no HTTP
// timeout since SSE connections outlive any sane request deadline.
func (a *OpenAIAdapter) client(streaming bool) (*openai.Client, error) {
	key := "sync"
	if streaming {
		key = "stream"
	}
	return a.clients.GetOrCreate(key, func() (*openai.Client, error) {
		opts := []option.RequestOption{
			option.WithAPIKey(a.cfg.APIKey),
		}
		if a.cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(a.cfg.BaseURL))
		}
		if !streaming {
			opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: callTimeout(a.cfg.TimeoutMs)}))
		}
		client := openai.NewClient(opts...)
		return &client, nil
	})
}

func (a *OpenAIAdapter) buildParams(req *models.ChatCompletionRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = a.DefaultModel()
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case models.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: msgs,
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(*req.MaxTokens)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*req.PresencePenalty)
	}
	return params
}

func (a *OpenAIAdapter) ChatCompletion(ctx context.Context, req *models.ChatCompletionRequest) (*models.ChatCompletionResponse, error) {
	client, err := a.client(false)
	if err != nil {
		return nil, models.NewInternalError("failed to build provider client", err)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout(a.cfg.TimeoutMs))
	defer cancel()

	resp, err := client.Chat.Completions.New(ctx, a.buildParams(req))
	if err != nil {
		return nil, a.wrapError(err)
	}

	return a.convertResponse(resp), nil
}

func (a *OpenAIAdapter) convertResponse(resp *openai.ChatCompletion) *models.ChatCompletionResponse {
	out := &models.ChatCompletionResponse{
		ID:       resp.ID,
		Object:   "chat.completion",
		Created:  resp.Created,
		Model:    resp.Model,
		Provider: a.name,
	}

	for i, choice := range resp.Choices {
		out.Choices = append(out.Choices, models.Choice{
			Index: i,
			Message: models.ChatMessage{
				Role:    models.RoleAssistant,
				Content: choice.Message.Content,
			},
			FinishReason: string(choice.FinishReason),
		})
	}

	out.Usage = normalizeSDKUsage(resp.Usage.RawJSON())
	stampResponse(out)
	return out
}

// normalizeSDKUsage flattens a provider usage block to integer fields only.
// DeepSeek attaches nested token detail objects that must not leak through.
func normalizeSDKUsage(raw string) *models.Usage {
	if raw == "" {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		fiberlog.Debugf("unparseable usage block from provider: %v", err)
		return nil
	}
	usage := models.NormalizeUsageFields(fields)
	return &usage
}

func (a *OpenAIAdapter) StreamChatCompletion(ctx context.Context, req *models.ChatCompletionRequest) (stream.DeltaStream, error) {
	client, err := a.client(true)
	if err != nil {
		return nil, models.NewInternalError("failed to build provider client", err)
	}

	s := client.Chat.Completions.NewStreaming(ctx, a.buildParams(req))
	if err := s.Err(); err != nil {
		return nil, a.wrapError(err)
	}
	return &openaiStream{provider: a.name, s: s}, nil
}

func (a *OpenAIAdapter) wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return models.NewUpstreamError(a.name, apiErr.StatusCode, "chat completion failed", err)
	}
	return models.NewUpstreamError(a.name, 0, "chat completion failed", err)
}

type openaiStream struct {
	provider string
	s        *ssestream.Stream[openai.ChatCompletionChunk]
}

func (o *openaiStream) Recv() (models.DeltaChunk, error) {
	for o.s.Next() {
		chunk := o.s.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		delta := models.DeltaChunk{
			Content:      choice.Delta.Content,
			FinishReason: choice.FinishReason,
		}
		if delta.Content == "" && delta.FinishReason == "" {
			continue
		}
		return delta, nil
	}
	if err := o.s.Err(); err != nil {
		return models.DeltaChunk{}, models.NewUpstreamError(o.provider, 0, "stream failed", err)
	}
	return models.DeltaChunk{}, io.EOF
}

func (o *openaiStream) Close() error {
	return o.s.Close()
}
