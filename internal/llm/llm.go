// Package llm defines the pluggable chat primitive the orchestrator
// uses for task decomposition, and a JSON-schema decoder for the
// decomposition response shape.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Response is what a Provider returns for one chat completion.
type Response struct {
	Content      string  `json:"content"`
	Model        string  `json:"model"`
	Provider     string  `json:"provider"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	LatencyMS    int64   `json:"latency_ms"`
	Cost         float64 `json:"cost"`
	Cached       bool    `json:"cached"`
}

// Provider is the minimal surface the orchestrator needs from an LLM
// backend. Swapping providers (or a fake, in tests) never touches
// orchestration logic.
type Provider interface {
	Chat(ctx context.Context, prompt string) (Response, error)
}

// decompositionSubtask is the wire shape an LLM is asked to emit for
// one subtask.
type decompositionSubtask struct {
	ID                   string   `json:"id"`
	Description          string   `json:"description"`
	RequiredCapabilities []string `json:"required_capabilities"`
	EstimatedComplexity  string   `json:"estimated_complexity"`
	Dependencies         []string `json:"dependencies"`
}

type decompositionPayload struct {
	Subtasks []decompositionSubtask `json:"subtasks"`
}

// ParseDecomposition decodes an LLM's raw content into subtask
// definitions. Returning an error here (rather than partial, possibly
// malformed results) lets the caller fall back to a deterministic
// two-node linear decomposition.
func ParseDecomposition(content string) ([]decompositionSubtask, error) {
	var payload decompositionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("llm: decode decomposition: %w", err)
	}
	if len(payload.Subtasks) == 0 {
		return nil, fmt.Errorf("llm: decomposition contained no subtasks")
	}

	ids := make(map[string]struct{}, len(payload.Subtasks))
	for _, st := range payload.Subtasks {
		if st.ID == "" || st.Description == "" {
			return nil, fmt.Errorf("llm: subtask missing id or description")
		}
		if _, dup := ids[st.ID]; dup {
			return nil, fmt.Errorf("llm: duplicate subtask id %q", st.ID)
		}
		ids[st.ID] = struct{}{}
	}
	for _, st := range payload.Subtasks {
		for _, dep := range st.Dependencies {
			if _, ok := ids[dep]; !ok {
				return nil, fmt.Errorf("llm: subtask %q depends on unresolved id %q", st.ID, dep)
			}
		}
	}

	return payload.Subtasks, nil
}

// Subtask exposes the decoded fields to callers outside this package
// without leaking the unexported wire type.
type Subtask = decompositionSubtask

// timeNow is overridable in tests that need deterministic latency
// measurement around a fake provider.
var timeNow = time.Now
