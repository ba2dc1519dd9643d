package prompt

import (
	"context"
	"errors"
	"fmt"
)

const openAIProviderName = "openai"

// RefineRequest asks a text-completion provider to elaborate a user prompt.
type RefineRequest struct {
	Instruction string
	Prompt      string
	StyleID     string
	RequestID   string
}

// RefineResponse carries the refined prompt.
type RefineResponse struct {
	Prompt   string
	Provider string
}

// Refiner rewrites user prompts before image generation.
type Refiner interface {
	Refine(ctx context.Context, req RefineRequest) (*RefineResponse, error)
}

// ErrRefinement marks every failure returned by a Refiner.
var ErrRefinement = errors.New("prompt refinement failed")

// RefineError records why a refinement failed; Reason is a short, stable
// token suitable for logs and metric labels.
type RefineError struct {
	Reason string
	Err    error
}

func (e *RefineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("refine %s: %v", e.Reason, e.Err)
	}
	return "refine " + e.Reason
}

func (e *RefineError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRefinement}
	}
	return []error{ErrRefinement, e.Err}
}

// ReasonOf extracts the failure reason, or "unknown".
func ReasonOf(err error) string {
	var re *RefineError
	if errors.As(err, &re) && re.Reason != "" {
		return re.Reason
	}
	return "unknown"
}
