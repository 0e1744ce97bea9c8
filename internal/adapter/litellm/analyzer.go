package litellm

import (
	"context"
	"fmt"
	"strings"

	"github.com/Strob0t/AgentForge/internal/domain/step"
)

const analyzerPrompt = `You route work between agents of a team.
Given the last message of agent %q, decide which agent should act next.
Candidates: %s.
Answer with exactly one candidate name, or "none" if the work should go back to the user.`

// Analyzer classifies an agent's output into the next agent using a small
// chat model.
type Analyzer struct {
	client *Client
	model  string
}

// NewAnalyzer creates an analyzer using model.
func NewAnalyzer(client *Client, model string) *Analyzer {
	return &Analyzer{client: client, model: model}
}

// Classify implements analyzer.CompletionAnalyzer. An answer that is not a
// candidate yields "".
func (a *Analyzer) Classify(ctx context.Context, last step.Step, candidates []string) (string, error) {
	if len(candidates) == 0 {
		return "", nil
	}
	zero := 0.0
	msg, err := a.client.ChatCompletion(ctx, ChatRequest{
		Model: a.model,
		Messages: []ChatMessage{
			{Role: "system", Content: fmt.Sprintf(analyzerPrompt, last.AgentName, strings.Join(candidates, ", "))},
			{Role: "user", Content: last.Text()},
		},
		Temperature: &zero,
		MaxTokens:   16,
	})
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}

	answer := strings.Trim(strings.TrimSpace(msg.Content), `"'.`)
	for _, c := range candidates {
		if strings.EqualFold(answer, c) {
			return c, nil
		}
	}
	return "", nil
}
