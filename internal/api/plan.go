package api

import (
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/modelrelay/modelrelay/internal/models"
	"github.com/modelrelay/modelrelay/internal/services/chat"
	"github.com/modelrelay/modelrelay/internal/services/middleware"
	"github.com/modelrelay/modelrelay/internal/services/plan"
	"github.com/modelrelay/modelrelay/internal/services/usage"
	"github.com/modelrelay/modelrelay/internal/utils"
)

// PlanHandler serves POST /v1/plan: one completion call turned into a
// structured step list.
type PlanHandler struct {
	resolver chat.Resolver
	usage    *usage.Service
}

func NewPlanHandler(resolver chat.Resolver, usageSvc *usage.Service) *PlanHandler {
	return &PlanHandler{resolver: resolver, usage: usageSvc}
}

func (h *PlanHandler) CreatePlan(c *fiber.Ctx) error {
	reqID := RequestID(c)

	var req models.PlanRequest
	if err := c.BodyParser(&req); err != nil {
		return models.NewValidationError("invalid request body", err)
	}
	if err := req.Validate(); err != nil {
		return err
	}

	adapter, err := h.resolver.Resolve(req.Model)
	if err != nil {
		return err
	}

	completionReq := plan.BuildRequest(&req)
	resp, err := adapter.ChatCompletion(c.Context(), completionReq)
	if err != nil {
		return err
	}

	steps := plan.Parse(resp.FirstContent(), plan.MaxSteps(req.MaxSteps))
	fiberlog.Infof("[%s] plan generated: %d steps via %s", reqID, len(steps), adapter.Name())

	h.recordUsage(c, adapter.Name(), resp, req.Task)

	return c.JSON(models.PlanResponse{
		Task:       req.Task,
		Steps:      steps,
		TotalSteps: len(steps),
		Model:      resp.Model,
	})
}

func (h *PlanHandler) recordUsage(c *fiber.Ctx, provider string, resp *models.ChatCompletionResponse, task string) {
	ident := middleware.Identity(c)
	if h.usage == nil || !ident.Authenticated() {
		return
	}

	log := &models.RequestLog{
		APIKeyID:  ident.APIKeyID,
		UserID:    ident.UserID,
		Provider:  provider,
		Model:     resp.Model,
		UserQuery: utils.TruncateQuery(task, 1000),
	}
	if resp.Usage != nil {
		log.PromptTokens = resp.Usage.PromptTokens
		log.CompletionTokens = resp.Usage.CompletionTokens
		log.TotalTokens = resp.Usage.TotalTokens
	}
	h.usage.RecordRequest(c.Context(), log)
}
