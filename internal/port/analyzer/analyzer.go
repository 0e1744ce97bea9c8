// Package analyzer defines the LLM-backed completion classifier consulted
// by the router when no handoff rule matches.
package analyzer

import (
	"context"

	"github.com/Strob0t/AgentForge/internal/domain/step"
)

// CompletionAnalyzer decides whether last hands off to one of candidates.
// It returns "" when the output needs continuation.
type CompletionAnalyzer interface {
	Classify(ctx context.Context, last step.Step, candidates []string) (string, error)
}

// Func adapts a function to CompletionAnalyzer.
type Func func(ctx context.Context, last step.Step, candidates []string) (string, error)

// Classify implements CompletionAnalyzer.
func (f Func) Classify(ctx context.Context, last step.Step, candidates []string) (string, error) {
	return f(ctx, last, candidates)
}
