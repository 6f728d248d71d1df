package plan

import (
	"strings"
	"testing"

	"github.com/modelrelay/modelrelay/internal/models"
)

func TestParseFencedJSON(t *testing.T) {
	text := "Here is the plan:\n```json\n" + `{
		"steps": [
			{"step_number": 1, "title": "Research", "description": "Gather requirements", "estimated_time": "1h"},
			{"step_number": 2, "title": "Build", "description": "Write the thing"}
		]
	}` + "\n```\nLet me know if you need more detail."

	steps := Parse(text, 10)
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[0].Title != "Research" || steps[0].EstimatedTime != "1h" {
		t.Errorf("first step = %+v", steps[0])
	}
	if steps[1].StepNumber != 2 {
		t.Errorf("second step number = %d", steps[1].StepNumber)
	}
}

func TestParseBareJSONArray(t *testing.T) {
	text := `[{"title": "Only step", "description": "do it"}]`
	steps := Parse(text, 10)
	if len(steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(steps))
	}
	if steps[0].StepNumber != 1 {
		t.Errorf("step number = %d, want 1 when omitted", steps[0].StepNumber)
	}
}

func TestParseAlternateKeys(t *testing.T) {
	text := `{"plan": [{"name": "Alt title", "content": "alt description", "time": "2d"}]}`
	steps := Parse(text, 10)
	if len(steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(steps))
	}
	if steps[0].Title != "Alt title" || steps[0].Description != "alt description" || steps[0].EstimatedTime != "2d" {
		t.Errorf("alternate keys not honored: %+v", steps[0])
	}
}

func TestParseStringSteps(t *testing.T) {
	text := `{"steps": ["first thing", "second thing"]}`
	steps := Parse(text, 10)
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[0].Description != "first thing" {
		t.Errorf("string step description = %q", steps[0].Description)
	}
}

func TestParseTruncatesToMaxSteps(t *testing.T) {
	text := `{"steps": ["a", "b", "c", "d", "e"]}`
	steps := Parse(text, 3)
	if len(steps) != 3 {
		t.Errorf("got %d steps, want 3", len(steps))
	}
}

func TestParseLineFallback(t *testing.T) {
	text := "Sure!\n1. Plan: sketch the design\n2. Build: write the code\n3. Ship: deploy it\n"
	steps := Parse(text, 10)
	if len(steps) != 3 {
		t.Fatalf("got %d steps, want 3: %+v", len(steps), steps)
	}
	if steps[1].Title != "2. Build" || steps[1].Description != "write the code" {
		t.Errorf("line step = %+v", steps[1])
	}
}

func TestParseUnstructuredFallsBackToSingleStep(t *testing.T) {
	long := strings.Repeat("thoughts ", 100)
	steps := Parse(long, 10)
	if len(steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(steps))
	}
	if steps[0].Title != "Task analysis" {
		t.Errorf("fallback title = %q", steps[0].Title)
	}
	if len(steps[0].Description) > 500 {
		t.Errorf("fallback description not truncated: %d chars", len(steps[0].Description))
	}
}

func TestBuildRequest(t *testing.T) {
	temp := 0.7
	req := BuildRequest(&models.PlanRequest{Task: "migrate the database", Model: "gpt-4o", Temperature: &temp})

	if req.Model != "gpt-4o" {
		t.Errorf("model = %q", req.Model)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("got %d messages, want system + user", len(req.Messages))
	}
	if req.Messages[0].Role != models.RoleSystem {
		t.Error("first message should be the system prompt")
	}
	if !strings.Contains(req.Messages[1].Content, "migrate the database") {
		t.Error("task missing from user prompt")
	}
	if req.MaxTokens == nil || *req.MaxTokens != maxPlanTokens {
		t.Error("plan requests should carry the planning token budget")
	}
}

func TestMaxSteps(t *testing.T) {
	if got := MaxSteps(0); got != defaultMaxSteps {
		t.Errorf("MaxSteps(0) = %d", got)
	}
	if got := MaxSteps(5); got != 5 {
		t.Errorf("MaxSteps(5) = %d", got)
	}
}
