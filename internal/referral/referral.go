// Package referral expands a turn beyond its primary agents. After the main
// response is produced, adjacent agents are checked for whether they would
// add meaningful new value, and at most a small budget of them actually run.
package referral

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"finsight/internal/agents"
	"finsight/internal/insight"
	"finsight/internal/llm"
	"finsight/internal/logging"
)

// DefaultBudget caps auto-referrals per turn.
const DefaultBudget = 1

// adjacency is direction-sensitive: allocation refers to rate_arbitrage but
// rate_arbitrage only refers back to allocation. The asymmetry is the
// policy, not an oversight.
var adjacency = map[agents.Agent][]agents.Agent{
	agents.Allocation:      {agents.Timing, agents.RateArbitrage},
	agents.TaxImplications: {agents.TLH, agents.Timing},
	agents.TLH:             {agents.TaxImplications, agents.Timing},
	agents.RateArbitrage:   {agents.Allocation},
	agents.Timing:          {agents.Allocation, agents.TaxImplications},
	agents.DirectResponse:  {agents.Allocation, agents.TaxImplications, agents.TLH, agents.RateArbitrage, agents.Timing},
}

// handoffs carries the (source, target) status lines shown before a referred
// agent runs. Missing pairs fall back to defaultHandoff.
var handoffs = map[agents.Agent]map[agents.Agent]string{
	agents.Allocation: {
		agents.RateArbitrage: "Your cash position affects your rate picture too — checking that...",
		agents.Timing:        "Let me check if any deadlines apply to this...",
	},
	agents.TaxImplications: {
		agents.TLH:    "There may be losses worth harvesting against this — looking now...",
		agents.Timing: "Checking if there are any time-sensitive considerations here...",
	},
	agents.TLH: {
		agents.Timing:          "Let me check the timing angle on this harvest...",
		agents.TaxImplications: "Reviewing the full tax picture on this...",
	},
	agents.RateArbitrage: {
		agents.Allocation: "This changes your allocation calculus — checking contribution room...",
	},
	agents.Timing: {
		agents.Allocation:      "Your cash position matters here — reviewing allocation...",
		agents.TaxImplications: "Checking the tax angle on this timing...",
	},
}

const defaultHandoff = "Let me see if any agents can add to this..."

// HandoffMessage picks the status line for referring target from any of the
// given sources, first match wins.
func HandoffMessage(sources []agents.Agent, target agents.Agent) string {
	for _, src := range sources {
		if msg, ok := handoffs[src][target]; ok {
			return msg
		}
	}
	return defaultHandoff
}

// Referral is one accepted expansion.
type Referral struct {
	Agent  agents.Agent
	Reason string
}

// Expander evaluates cross-referral candidates with an LLM relevance check.
type Expander struct {
	client llm.Client
	budget int
}

// New creates an Expander. A budget below one falls back to DefaultBudget.
func New(client llm.Client, budget int) *Expander {
	if budget < 1 {
		budget = DefaultBudget
	}
	return &Expander{client: client, budget: budget}
}

// Candidates returns the union of the sources' adjacent agents, minus any
// agent already invoked this turn, in sorted order.
func Candidates(sources []agents.Agent, invoked map[agents.Agent]bool) []agents.Agent {
	seen := make(map[agents.Agent]bool)
	for _, src := range sources {
		for _, cand := range adjacency[src] {
			if !invoked[cand] && !seen[cand] {
				seen[cand] = true
			}
		}
	}
	out := make([]agents.Agent, 0, len(seen))
	for cand := range seen {
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type checkReply struct {
	Refer  bool   `json:"refer"`
	Reason string `json:"reason"`
}

type checkPayload struct {
	UserMessage   string                       `json:"user_message"`
	Response      string                       `json:"response"`
	AgentFindings map[string][]insight.Finding `json:"agent_findings"`
}

const checkPromptFmt = "Given the user's question, the agent findings shown, and the response already given, " +
	"would invoking the %s agent (%s) add meaningful NEW value for the user right now? " +
	"Only say yes if there is a clear, specific connection — not on general principle. " +
	"If findings are empty or the question is a greeting/small-talk, always say no.\n\n" +
	`Return ONLY valid JSON: {"refer": true/false, "reason": "one sentence"}`

// Evaluate runs the relevance check for every candidate concurrently and
// returns the accepted referrals, truncated to the remaining budget. Each
// check fails closed: an error or malformed reply drops that candidate only.
func (e *Expander) Evaluate(ctx context.Context, sources []agents.Agent, invoked map[agents.Agent]bool, userMessage, responseText string, findings map[string][]insight.Finding) []Referral {
	log := logging.Get(logging.CategoryReferral)

	candidates := Candidates(sources, invoked)
	if len(candidates) == 0 {
		return nil
	}

	replies := make([]checkReply, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			reply, err := e.check(gctx, cand, userMessage, responseText, findings)
			if err != nil {
				log.Warn("referral check failed, skipping candidate",
					zap.String("agent", string(cand)), zap.Error(err))
				return nil
			}
			replies[i] = reply
			return nil
		})
	}
	_ = g.Wait()

	var accepted []Referral
	for i, cand := range candidates {
		if replies[i].Refer {
			accepted = append(accepted, Referral{Agent: cand, Reason: replies[i].Reason})
		}
	}
	if len(accepted) > e.budget {
		accepted = accepted[:e.budget]
	}
	return accepted
}

func (e *Expander) check(ctx context.Context, cand agents.Agent, userMessage, responseText string, findings map[string][]insight.Finding) (checkReply, error) {
	payload, err := json.Marshal(checkPayload{
		UserMessage:   userMessage,
		Response:      responseText,
		AgentFindings: findings,
	})
	if err != nil {
		return checkReply{}, fmt.Errorf("failed to marshal referral payload: %w", err)
	}

	prompt := fmt.Sprintf(checkPromptFmt, cand, cand.Description())
	raw, err := e.client.CompleteWithSystem(ctx, prompt, string(payload))
	if err != nil {
		return checkReply{}, fmt.Errorf("referral check for %s failed: %w", cand, err)
	}

	var reply checkReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		return checkReply{}, fmt.Errorf("referral check for %s returned malformed reply: %w", cand, err)
	}
	return reply, nil
}
