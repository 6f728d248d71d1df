package chat

import (
	"context"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/cache"
	"github.com/modelrelay/modelrelay/internal/services/conversations"
	"github.com/modelrelay/modelrelay/internal/services/providers"
	"github.com/modelrelay/modelrelay/internal/services/stream"
	"github.com/modelrelay/modelrelay/internal/services/usage"
	"github.com/modelrelay/modelrelay/internal/utils"
)

// Resolver picks the adapter responsible for a model name.
type Resolver interface {
	Resolve(model string) (providers.Adapter, error)
}

// Service runs the completion pipeline: conversation merge, cache lookup,
// adapter dispatch, accounting and persistence.
type Service struct {
	resolver      Resolver
	cache         *cache.ResponseCache
	conversations *conversations.Service
	usage         *usage.Service
	now           func() time.Time
}

func NewService(resolver Resolver, respCache *cache.ResponseCache, convs *conversations.Service, usageSvc *usage.Service) *Service {
	return &Service{
		resolver:      resolver,
		cache:         respCache,
		conversations: convs,
		usage:         usageSvc,
		now:           time.Now,
	}
}

// StreamStart describes an in-flight streaming completion. OnComplete must
// be invoked by the relay when the stream ends naturally.
type StreamStart struct {
	Stream         stream.DeltaStream
	ID             string
	Model          string
	Provider       string
	Created        int64
	ConversationID uint
	OnComplete     func(fullText, finishReason string)
}

// Complete serves a non-streaming chat completion.
func (s *Service) Complete(ctx context.Context, req *models.ChatCompletionRequest, ident models.ClientIdentity) (*models.ChatCompletionResponse, bool, error) {
	adapter, err := s.resolver.Resolve(req.Model)
	if err != nil {
		return nil, false, err
	}

	convID, merged, err := s.prepareConversation(ctx, req, ident)
	if err != nil {
		return nil, false, err
	}

	effective := *req
	effective.Messages = merged

	// Conversation-bound requests shift context every turn, so only
	// detached requests are cache-eligible.
	cacheKey := ""
	if s.cache.Enabled() && convID == 0 && cache.Cacheable(&effective) {
		cacheKey = cache.Fingerprint(&effective, ident.ClientID)
		if cached, ok := s.cache.Get(cacheKey); ok {
			fiberlog.Infof("cache hit for client %s", ident.ClientID)
			s.recordUsage(ctx, ident, cached.Provider, cached.Model, merged, &models.Usage{}, true)
			return cached, true, nil
		}
	}

	resp, err := adapter.ChatCompletion(ctx, &effective)
	if err != nil {
		return nil, false, err
	}
	if convID != 0 {
		resp.ConversationID = &convID
	}

	if cacheKey != "" {
		s.cache.Set(cacheKey, resp)
	}

	s.recordUsage(ctx, ident, resp.Provider, resp.Model, merged, resp.Usage, false)
	s.persistTurns(ctx, convID, req.Messages, resp.FirstContent())

	return resp, false, nil
}

// Stream starts a streaming completion. Nothing is pulled from the
// upstream until the caller's relay drains the returned stream.
func (s *Service) Stream(ctx context.Context, req *models.ChatCompletionRequest, ident models.ClientIdentity) (*StreamStart, error) {
	adapter, err := s.resolver.Resolve(req.Model)
	if err != nil {
		return nil, err
	}

	convID, merged, err := s.prepareConversation(ctx, req, ident)
	if err != nil {
		return nil, err
	}

	effective := *req
	effective.Messages = merged

	ds, err := adapter.StreamChatCompletion(ctx, &effective)
	if err != nil {
		return nil, err
	}

	model := effective.Model
	if model == "" {
		model = adapter.DefaultModel()
	}

	start := &StreamStart{
		Stream:         ds,
		ID:             "chatcmpl-" + uuid.NewString(),
		Model:          model,
		Provider:       adapter.Name(),
		Created:        s.now().Unix(),
		ConversationID: convID,
	}
	start.OnComplete = func(fullText, finishReason string) {
		// Token counts are not available on the wire for streams.
		s.recordUsage(ctx, ident, start.Provider, model, merged, &models.Usage{}, false)
		s.persistTurns(context.WithoutCancel(ctx), convID, req.Messages, fullText)
	}
	return start, nil
}

// prepareConversation resolves the conversation context for a request:
// loading and merging history for an explicit conversation_id, or creating
// a conversation for authenticated callers who did not name one.
func (s *Service) prepareConversation(ctx context.Context, req *models.ChatCompletionRequest, ident models.ClientIdentity) (uint, []models.ChatMessage, error) {
	merged := req.Messages

	if req.ConversationID != nil {
		if !s.conversations.Enabled() {
			return 0, nil, models.NewValidationError("conversation persistence is not configured", nil)
		}
		if !ident.Authenticated() {
			return 0, nil, models.NewAuthenticationError("conversations require an API key")
		}

		history, err := s.conversations.History(ctx, ident.UserID, *req.ConversationID)
		if err != nil {
			return 0, nil, err
		}
		merged = append(append([]models.ChatMessage{}, history...), req.Messages...)
		fiberlog.Infof("loaded conversation %d: %d history turns, %d new", *req.ConversationID, len(history), len(req.Messages))
		return *req.ConversationID, merged, nil
	}

	if s.conversations.Enabled() && ident.Authenticated() {
		conv, err := s.conversations.Create(ctx, ident.UserID, titleFromMessages(req.Messages))
		if err != nil {
			// Persistence failure must not block the completion itself.
			fiberlog.Errorf("failed to auto-create conversation: %v", err)
			return 0, merged, nil
		}
		fiberlog.Infof("auto-created conversation %d for user %d", conv.ID, ident.UserID)
		return conv.ID, merged, nil
	}

	return 0, merged, nil
}

func titleFromMessages(msgs []models.ChatMessage) string {
	for _, m := range msgs {
		if m.Role == models.RoleUser && m.Content != "" {
			return utils.TruncateQuery(m.Content, 50)
		}
	}
	return ""
}

func (s *Service) recordUsage(ctx context.Context, ident models.ClientIdentity, provider, model string, merged []models.ChatMessage, u *models.Usage, cacheHit bool) {
	if s.usage == nil || !ident.Authenticated() {
		return
	}

	query, err := utils.LastUserMessage(merged)
	if err != nil && len(merged) > 0 {
		query = merged[0].Content
	}

	log := &models.RequestLog{
		APIKeyID:  ident.APIKeyID,
		UserID:    ident.UserID,
		Provider:  provider,
		Model:     model,
		UserQuery: utils.TruncateQuery(query, 1000),
		CacheHit:  cacheHit,
	}
	if u != nil {
		log.PromptTokens = u.PromptTokens
		log.CompletionTokens = u.CompletionTokens
		log.TotalTokens = u.TotalTokens
	}
	s.usage.RecordRequest(ctx, log)
}

// persistTurns stores the request's new user/system turns plus the
// assistant reply. Failures are logged; the completion already succeeded.
func (s *Service) persistTurns(ctx context.Context, convID uint, reqMsgs []models.ChatMessage, assistantReply string) {
	if convID == 0 || !s.conversations.Enabled() {
		return
	}

	var turns []models.ChatMessage
	for _, m := range reqMsgs {
		if m.Role == models.RoleUser || m.Role == models.RoleSystem {
			turns = append(turns, m)
		}
	}
	if assistantReply != "" {
		turns = append(turns, models.ChatMessage{Role: models.RoleAssistant, Content: assistantReply})
	}

	if err := s.conversations.Append(ctx, convID, turns...); err != nil {
		fiberlog.Errorf("failed to persist conversation %d turns: %v", convID, err)
	}
}
