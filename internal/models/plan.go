package models

// PlanRequest asks the gateway to split a task into executable steps.
type PlanRequest struct {
	Task        string   `json:"task"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxSteps    int      `json:"max_steps,omitempty"`
}

func (r *PlanRequest) Validate() error {
	if r.Task == "" {
		return NewValidationError("task is required", nil)
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return NewValidationError("temperature must be between 0 and 2", nil)
	}
	if r.MaxSteps < 0 || r.MaxSteps > 50 {
		return NewValidationError("max_steps must be between 1 and 50", nil)
	}
	return nil
}

type PlanStep struct {
	StepNumber    int    `json:"step_number"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	EstimatedTime string `json:"estimated_time,omitempty"`
}

type PlanResponse struct {
	Task       string     `json:"task"`
	Steps      []PlanStep `json:"steps"`
	TotalSteps int        `json:"total_steps"`
	Model      string     `json:"model"`
}
