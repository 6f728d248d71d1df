package providers

import (
	"context"
	"io"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/stream"
	"github.com/modelrelay/modelrelay/internal/utils/clientcache"
)

type GeminiAdapter struct {
	cfg     models.ProviderConfig
	clients *clientcache.Cache[*genai.Client]
}

var geminiModelIDs = []string{
	"gemini-2.5-pro",
	"gemini-2.5-flash",
	"gemini-2.0-flash",
}

func NewGeminiAdapter(cfg models.ProviderConfig) *GeminiAdapter {
	return &GeminiAdapter{
		cfg:     cfg,
		clients: clientcache.NewCache[*genai.Client](),
	}
}

func (g *GeminiAdapter) Name() string { return "gemini" }

func (g *GeminiAdapter) DefaultModel() string {
	if g.cfg.DefaultModel != "" {
		return g.cfg.DefaultModel
	}
	return geminiModelIDs[0]
}

func (g *GeminiAdapter) Models() []models.ModelInfo {
	return modelInfos("google", geminiModelIDs)
}

func (g *GeminiAdapter) client(ctx context.Context) (*genai.Client, error) {
	return g.clients.GetOrCreate("client", func() (*genai.Client, error) {
		return genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  g.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
	})
}

// buildCall maps the normalized request onto Gemini contents and config.
// System messages become the system instruction; assistant turns map to the
// model role.
func (g *GeminiAdapter) buildCall(req *models.ChatCompletionRequest) (string, []*genai.Content, *genai.GenerateContentConfig) {
	model := req.Model
	if model == "" {
		model = g.DefaultModel()
	}

	cfg := &genai.GenerateContentConfig{}
	var system []string
	var contents []*genai.Content

	for _, m := range req.Messages {
		switch m.Role {
		case models.RoleSystem:
			system = append(system, m.Content)
		case models.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.Temperature != nil {
		cfg.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.TopP != nil {
		cfg.TopP = genai.Ptr(float32(*req.TopP))
	}
	if req.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*req.MaxTokens)
	}

	return model, contents, cfg
}

func (g *GeminiAdapter) ChatCompletion(ctx context.Context, req *models.ChatCompletionRequest) (*models.ChatCompletionResponse, error) {
	client, err := g.client(ctx)
	if err != nil {
		return nil, models.NewInternalError("failed to build provider client", err)
	}

	model, contents, genCfg := g.buildCall(req)

	ctx, cancel := context.WithTimeout(ctx, callTimeout(g.cfg.TimeoutMs))
	defer cancel()

	resp, err := client.Models.GenerateContent(ctx, model, contents, genCfg)
	if err != nil {
		return nil, models.NewUpstreamError("gemini", 0, "generate content failed", err)
	}

	out := &models.ChatCompletionResponse{
		Object:   "chat.completion",
		Model:    model,
		Provider: "gemini",
	}

	var text strings.Builder
	finish := ""
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				text.WriteString(part.Text)
			}
		}
		finish = mapGeminiFinish(cand.FinishReason)
	}

	out.Choices = []models.Choice{{
		Message: models.ChatMessage{
			Role:    models.RoleAssistant,
			Content: text.String(),
		},
		FinishReason: finish,
	}}

	if resp.UsageMetadata != nil {
		out.Usage = &models.Usage{
			PromptTokens:     int64(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int64(resp.UsageMetadata.TotalTokenCount),
		}
	}

	stampResponse(out)
	return out, nil
}

func (g *GeminiAdapter) StreamChatCompletion(ctx context.Context, req *models.ChatCompletionRequest) (stream.DeltaStream, error) {
	client, err := g.client(ctx)
	if err != nil {
		return nil, models.NewInternalError("failed to build provider client", err)
	}

	model, contents, genCfg := g.buildCall(req)
	seq := client.Models.GenerateContentStream(ctx, model, contents, genCfg)
	next, stop := iter.Pull2(seq)
	return &geminiStream{next: next, stop: stop}, nil
}

func mapGeminiFinish(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop:
		return "stop"
	case genai.FinishReasonMaxTokens:
		return "length"
	case "":
		return ""
	default:
		return strings.ToLower(string(reason))
	}
}

// geminiStream adapts the SDK's push iterator into the pull shape the relay
// consumes. stop releases the iterator early on Close.
type geminiStream struct {
	next    func() (*genai.GenerateContentResponse, error, bool)
	stop    func()
	done    bool
	pending string
}

func (g *geminiStream) Recv() (models.DeltaChunk, error) {
	if g.pending != "" {
		finish := g.pending
		g.pending = ""
		return models.DeltaChunk{FinishReason: finish}, nil
	}
	if g.done {
		return models.DeltaChunk{}, io.EOF
	}

	for {
		resp, err, ok := g.next()
		if !ok {
			g.done = true
			return models.DeltaChunk{}, io.EOF
		}
		if err != nil {
			g.done = true
			return models.DeltaChunk{}, models.NewUpstreamError("gemini", 0, "stream failed", err)
		}
		if len(resp.Candidates) == 0 {
			continue
		}

		cand := resp.Candidates[0]
		var text strings.Builder
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				text.WriteString(part.Text)
			}
		}

		finish := mapGeminiFinish(cand.FinishReason)
		if text.Len() == 0 && finish == "" {
			continue
		}
		if text.Len() == 0 {
			return models.DeltaChunk{FinishReason: finish}, nil
		}
		// Deliver the finish reason on its own chunk after the text.
		g.pending = finish
		return models.DeltaChunk{Content: text.String()}, nil
	}
}

func (g *geminiStream) Close() error {
	if !g.done {
		g.stop()
		g.done = true
	}
	return nil
}
