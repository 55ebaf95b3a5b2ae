package ports

import (
	"context"
	"errors"
)

// ErrUnparseablePlan is returned by PlanSteps when the service answered but
// no step list could be extracted from the answer.
var ErrUnparseablePlan = errors.New("plan response could not be parsed")

// Step is one item of an auto-generated plan.
type Step struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

// TextGenerator is the AI text service.
type TextGenerator interface {
	// Generate returns the model's answer to prompt
	Generate(ctx context.Context, prompt string) (string, error)

	// PlanSteps breaks an idea into ordered steps
	PlanSteps(ctx context.Context, idea string) ([]Step, error)
}
