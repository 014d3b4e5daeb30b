// Package llm provides the model-provider clients used by the analysis
// agents, the router, and the synthesis steps. Providers are interchangeable
// behind the Client interface; callers never see provider-specific types.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Client is the minimal completion interface the rest of the system uses.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// StripFences removes a surrounding markdown code fence from a model reply.
// Models frequently wrap JSON in ```json ... ``` despite instructions.
func StripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "```") {
		return raw
	}
	parts := strings.Split(raw, "```")
	if len(parts) < 2 {
		return raw
	}
	body := parts[1]
	body = strings.TrimPrefix(body, "json")
	return strings.TrimSpace(body)
}

// DecodeJSON strips fences and unmarshals the reply into v.
func DecodeJSON(raw string, v any) error {
	cleaned := StripFences(raw)
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return fmt.Errorf("malformed model JSON: %w", err)
	}
	return nil
}
