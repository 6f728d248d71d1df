package plan

import (
	"encoding/json"
	"fmt"
	"strings"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/modelrelay/modelrelay/internal/models"
)

const (
	defaultMaxSteps = 10
	maxPlanTokens   = 2000
)

const systemPrompt = `You are a task planning assistant. Break the task the
user gives you into clear, ordered steps.

Requirements:
1. Split the task into 3-10 concrete steps
2. Give each step a short title and a description
3. Order steps logically
4. Provide an estimated time per step where possible

Respond in JSON:
{
  "steps": [
    {
      "step_number": 1,
      "title": "step title",
      "description": "step description",
      "estimated_time": "optional estimate"
    }
  ]
}

If JSON is impossible, use one step per line as "N. title: description".`

// BuildRequest shapes the planning prompt as a chat completion request.
func BuildRequest(req *models.PlanRequest) *models.ChatCompletionRequest {
	maxTokens := int64(maxPlanTokens)
	return &models.ChatCompletionRequest{
		Model: req.Model,
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: systemPrompt},
			{Role: models.RoleUser, Content: "Break the following task into steps:\n\n" + req.Task},
		},
		Temperature: req.Temperature,
		MaxTokens:   &maxTokens,
	}
}

// MaxSteps applies the default and cap to a requested step count.
func MaxSteps(requested int) int {
	if requested <= 0 {
		return defaultMaxSteps
	}
	return requested
}

// Parse extracts plan steps from a model response. JSON is tried first,
// including fenced blocks; then a line-based format; finally the raw text
// becomes a single analysis step so the endpoint never returns empty.
func Parse(text string, maxSteps int) []models.PlanStep {
	if steps := parseJSON(text, maxSteps); len(steps) > 0 {
		return steps
	}

	fiberlog.Debug("plan response was not parseable JSON, falling back to line format")
	if steps := parseLines(text, maxSteps); len(steps) > 0 {
		return steps
	}

	summary := text
	if len(summary) > 500 {
		summary = summary[:500]
	}
	return []models.PlanStep{{
		StepNumber:  1,
		Title:       "Task analysis",
		Description: strings.TrimSpace(summary),
	}}
}

// extractJSON pulls the payload out of a markdown code fence, or returns
// the trimmed input when there is none.
func extractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(text)
}

type rawStep struct {
	StepNumber    int    `json:"step_number"`
	Title         string `json:"title"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Content       string `json:"content"`
	EstimatedTime string `json:"estimated_time"`
	Time          string `json:"time"`
}

func parseJSON(text string, maxSteps int) []models.PlanStep {
	payload := extractJSON(text)

	var list []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &list); err != nil {
		// Maybe an object carrying the list under "steps" or "plan".
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal([]byte(payload), &wrapper); err != nil {
			return nil
		}
		inner, ok := wrapper["steps"]
		if !ok {
			inner, ok = wrapper["plan"]
		}
		if !ok {
			return nil
		}
		if err := json.Unmarshal(inner, &list); err != nil {
			return nil
		}
	}

	var steps []models.PlanStep
	for i, item := range list {
		if len(steps) >= maxSteps {
			break
		}

		var rs rawStep
		if err := json.Unmarshal(item, &rs); err == nil && (rs.Title != "" || rs.Name != "" || rs.Description != "" || rs.Content != "") {
			step := models.PlanStep{
				StepNumber:    rs.StepNumber,
				Title:         rs.Title,
				Description:   rs.Description,
				EstimatedTime: rs.EstimatedTime,
			}
			if step.StepNumber == 0 {
				step.StepNumber = i + 1
			}
			if step.Title == "" {
				step.Title = rs.Name
			}
			if step.Title == "" {
				step.Title = fmt.Sprintf("Step %d", i+1)
			}
			if step.Description == "" {
				step.Description = rs.Content
			}
			if step.EstimatedTime == "" {
				step.EstimatedTime = rs.Time
			}
			steps = append(steps, step)
			continue
		}

		var s string
		if err := json.Unmarshal(item, &s); err == nil && s != "" {
			steps = append(steps, models.PlanStep{
				StepNumber:  i + 1,
				Title:       fmt.Sprintf("Step %d", i+1),
				Description: s,
			})
		}
	}
	return steps
}

var lineMarkers = []string{"1.", "2.", "3.", "4.", "5.", "6.", "7.", "8.", "9.", "Step", "STEP"}

func parseLines(text string, maxSteps int) []models.PlanStep {
	var steps []models.PlanStep
	number := 1

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !hasStepMarker(line) {
			continue
		}

		var title, description string
		if idx := strings.Index(line, ":"); idx >= 0 {
			title = strings.TrimSpace(line[:idx])
			description = strings.TrimSpace(line[idx+1:])
		} else if idx := strings.Index(line, "."); idx >= 0 && idx+1 < len(line) {
			title = strings.TrimSpace(line[:idx])
			description = strings.TrimSpace(line[idx+1:])
		}
		if description == "" {
			title = fmt.Sprintf("Step %d", number)
			description = line
		}

		steps = append(steps, models.PlanStep{
			StepNumber:  number,
			Title:       title,
			Description: description,
		})
		number++
		if number > maxSteps {
			break
		}
	}
	return steps
}

func hasStepMarker(line string) bool {
	for _, marker := range lineMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}
