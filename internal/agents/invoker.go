package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"finsight/internal/insight"
	"finsight/internal/llm"
	"finsight/internal/logging"
	"finsight/internal/rules"
	"finsight/internal/snapshot"
)

// Outcome is the result of one agent invocation inside a fan-out. A failed
// agent yields an Outcome with Err set and no findings; it never aborts the
// group.
type Outcome struct {
	Agent    Agent
	Findings []insight.Finding
	Err      error
}

// Result converts the outcome into the capability result the merge pipeline
// consumes.
func (o Outcome) Result() insight.CapabilityResult {
	return insight.CapabilityResult{Domain: o.Agent.DomainKey(), Findings: o.Findings}
}

// Invoker runs agents against snapshots through an LLM client.
type Invoker struct {
	client llm.Client
}

// NewInvoker creates an Invoker.
func NewInvoker(client llm.Client) *Invoker {
	return &Invoker{client: client}
}

type agentPayload struct {
	FinancialProfile snapshot.Snapshot `json:"financial_profile"`
	TaxRules         rules.Ruleset     `json:"tax_rules"`
}

type agentReply struct {
	Findings []insight.Finding `json:"findings"`
}

// Run invokes a single agent against its own copy of the snapshot and
// returns its findings. The agent only ever sees a snapshot value, so a
// hypothetically-mutated what-if snapshot needs no special handling.
func (inv *Invoker) Run(ctx context.Context, agent Agent, snap snapshot.Snapshot, rs rules.Ruleset) ([]insight.Finding, error) {
	if !agent.Invokable() {
		return nil, fmt.Errorf("unknown agent %q", agent)
	}

	payload, err := json.Marshal(agentPayload{FinancialProfile: snap, TaxRules: rs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal agent payload: %w", err)
	}

	raw, err := inv.client.CompleteWithSystem(ctx, agent.systemPrompt(), string(payload))
	if err != nil {
		return nil, fmt.Errorf("agent %s call failed: %w", agent, err)
	}

	var reply agentReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		return nil, fmt.Errorf("agent %s returned malformed findings: %w", agent, err)
	}

	logging.Get(logging.CategoryAgents).Debug("agent completed",
		zap.String("agent", string(agent)),
		zap.Int("findings", len(reply.Findings)))
	return reply.Findings, nil
}

// RunAll fans out to the given agents concurrently. Each call gets its own
// snapshot clone. Outcomes come back in the order agents were requested,
// regardless of completion order; a failing agent is isolated into its own
// outcome.
func (inv *Invoker) RunAll(ctx context.Context, list []Agent, snap snapshot.Snapshot, rs rules.Ruleset) []Outcome {
	outcomes := make([]Outcome, len(list))

	g, gctx := errgroup.WithContext(ctx)
	for i, agent := range list {
		i, agent := i, agent
		clone := snap.Clone()
		g.Go(func() error {
			findings, err := inv.Run(gctx, agent, clone, rs)
			if err != nil {
				logging.Get(logging.CategoryAgents).Warn("agent failed in fan-out",
					zap.String("agent", string(agent)), zap.Error(err))
				outcomes[i] = Outcome{Agent: agent, Err: err}
				return nil // isolate: siblings keep running
			}
			outcomes[i] = Outcome{Agent: agent, Findings: findings}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// RunAllWithin runs the whole fan-out under a fixed deadline. On timeout
// the slow agents degrade to empty outcomes with the deadline error; the
// caller proceeds with whatever completed. Used by the trade pre-check.
func (inv *Invoker) RunAllWithin(ctx context.Context, d time.Duration, list []Agent, snap snapshot.Snapshot, rs rules.Ruleset) []Outcome {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return inv.RunAll(ctx, list, snap, rs)
}
