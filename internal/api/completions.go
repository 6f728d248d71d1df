package api

import (
	"bufio"
	"context"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/valyala/fasthttp"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/chat"
	"github.com/modelrelay/modelrelay/internal/services/middleware"
	"github.com/modelrelay/modelrelay/internal/services/stream"
)

// CompletionHandler serves POST /v1/chat/completions for both buffered and
// streaming responses.
type CompletionHandler struct {
	chat *chat.Service
}

func NewCompletionHandler(chatSvc *chat.Service) *CompletionHandler {
	return &CompletionHandler{chat: chatSvc}
}

func (h *CompletionHandler) ChatCompletion(c *fiber.Ctx) error {
	reqID := RequestID(c)

	var req models.ChatCompletionRequest
	if err := c.BodyParser(&req); err != nil {
		return models.NewValidationError("invalid request body", err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	ident := middleware.Identity(c)
	fiberlog.Infof("[%s] chat completion: model=%q stream=%v client=%s", reqID, req.Model, req.Stream, ident.ClientID)

	if req.Stream {
		return h.streamCompletion(c, &req, ident, reqID)
	}

	resp, cacheHit, err := h.chat.Complete(c.Context(), &req, ident)
	if err != nil {
		return err
	}
	if cacheHit {
		c.Set("X-Cache", "HIT")
	}
	return c.JSON(resp)
}

func (h *CompletionHandler) streamCompletion(c *fiber.Ctx, req *models.ChatCompletionRequest, ident models.ClientIdentity, reqID string) error {
	start, err := h.chat.Stream(c.Context(), req, ident)
	if err != nil {
		return err
	}

	fasthttpCtx := c.Context()
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	relay := &stream.Relay{
		RequestID:  reqID,
		ID:         start.ID,
		Model:      start.Model,
		Provider:   start.Provider,
		Created:    start.Created,
		OnComplete: start.OnComplete,
	}

	fasthttpCtx.SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		if err := relay.Run(fasthttpCtx, start.Stream, w); err != nil {
			if err == context.Canceled || fasthttpCtx.Err() != nil {
				fiberlog.Infof("[%s] stream ended: client gone", reqID)
			} else {
				fiberlog.Errorf("[%s] stream relay error: %v", reqID, err)
			}
		}
	}))

	return nil
}
