// Package router decides, once per turn, which agents a user message
// needs, whether external context should be fetched first, and whether the
// conversation so far already answers the question.
package router

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"finsight/internal/agents"
	"finsight/internal/insight"
	"finsight/internal/llm"
	"finsight/internal/logging"
)

//go:embed prompt.txt
var systemPrompt string

const maxHistory = 6

// Decision is produced once per turn and never mutated afterward.
type Decision struct {
	AgentsToInvoke       []agents.Agent `json:"agents_to_invoke"`
	NeedsContextLookup   bool           `json:"needs_context_lookup"`
	ContextQuery         string         `json:"context_query,omitempty"`
	CanAnswerFromContext bool           `json:"can_answer_from_context"`
	DirectResponse       string         `json:"direct_response,omitempty"`
	Reasoning            string         `json:"routing_reasoning"`
}

// Record is one transcript entry handed to the router for context.
type Record struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Router maps a message plus conversation context to a Decision.
type Router struct {
	client llm.Client
}

func New(client llm.Client) *Router {
	return &Router{client: client}
}

type routerPayload struct {
	UserMessage         string                       `json:"user_message"`
	ConversationHistory []Record                     `json:"conversation_history"`
	LastFindingsSummary map[string][]insight.Finding `json:"last_findings_summary"`
}

// decisionWire tolerates the model emitting the legacy "reasoning" key.
type decisionWire struct {
	Decision
	LegacyReasoning string `json:"reasoning"`
}

// Route produces the turn's Decision. History beyond the most recent six
// records is dropped, and lastFindings shrinks to the first finding per
// domain so the payload stays bounded. Any failure degrades to the
// fail-open default: invoke every agent, answer nothing from context.
func (r *Router) Route(ctx context.Context, message string, history []Record, lastFindings map[string][]insight.Finding) Decision {
	log := logging.Get(logging.CategoryRouting)

	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	summary := make(map[string][]insight.Finding)
	for domain, findings := range lastFindings {
		if domain == "greeting_data" || len(findings) == 0 {
			continue
		}
		summary[domain] = findings[:1]
	}

	decision, err := r.route(ctx, message, history, summary)
	if err != nil {
		log.Warn("routing failed, falling open to all agents", zap.Error(err))
		return FailOpen()
	}

	log.Debug("routed",
		zap.Int("agents", len(decision.AgentsToInvoke)),
		zap.Bool("direct", decision.CanAnswerFromContext),
		zap.Bool("context_lookup", decision.NeedsContextLookup))
	return decision
}

func (r *Router) route(ctx context.Context, message string, history []Record, summary map[string][]insight.Finding) (Decision, error) {
	payload, err := json.Marshal(routerPayload{
		UserMessage:         message,
		ConversationHistory: history,
		LastFindingsSummary: summary,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to marshal routing payload: %w", err)
	}

	raw, err := r.client.CompleteWithSystem(ctx, systemPrompt, string(payload))
	if err != nil {
		return Decision{}, fmt.Errorf("router call failed: %w", err)
	}

	var wire decisionWire
	if err := llm.DecodeJSON(raw, &wire); err != nil {
		return Decision{}, fmt.Errorf("router returned malformed decision: %w", err)
	}
	d := wire.Decision
	if d.Reasoning == "" {
		d.Reasoning = wire.LegacyReasoning
	}

	// Unknown agent names from the model are dropped rather than invoked.
	kept := d.AgentsToInvoke[:0]
	for _, a := range d.AgentsToInvoke {
		if a.Invokable() {
			kept = append(kept, a)
		}
	}
	d.AgentsToInvoke = kept
	return d, nil
}

// FailOpen is the degraded decision used whenever routing cannot complete:
// every agent runs so the turn still produces a substantive answer.
func FailOpen() Decision {
	return Decision{
		AgentsToInvoke:       agents.All(),
		CanAnswerFromContext: false,
		Reasoning:            "fallback: router error, invoking all agents",
	}
}
