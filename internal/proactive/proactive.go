// Package proactive builds the session-open greeting: every agent runs
// against the live portfolio and the top findings get synthesized into a
// short welcome message.
package proactive

import (
	"context"

	"go.uber.org/zap"

	"finsight/internal/agents"
	"finsight/internal/insight"
	"finsight/internal/logging"
	"finsight/internal/rules"
	"finsight/internal/snapshot"
	"finsight/internal/synthesis"
)

const topFindingCount = 3

// SnapshotFunc builds the live portfolio snapshot.
type SnapshotFunc func(ctx context.Context) (snapshot.Snapshot, error)

// Greeting is the proactive session-open payload.
type Greeting struct {
	Message      string            `json:"message"`
	TopFindings  []insight.Finding `json:"top_findings"`
	AgentSources []string          `json:"agent_sources"`
}

// Generator runs the full fan-out and synthesizes the greeting.
type Generator struct {
	invoker     *agents.Invoker
	synthesizer *synthesis.Synthesizer
	snapshot    SnapshotFunc
}

func NewGenerator(inv *agents.Invoker, syn *synthesis.Synthesizer, snap SnapshotFunc) *Generator {
	return &Generator{invoker: inv, synthesizer: syn, snapshot: snap}
}

// Generate runs all agents against the live snapshot and returns the
// greeting. Agent failures degrade to fewer findings, never to an error;
// only a snapshot failure is fatal.
func (g *Generator) Generate(ctx context.Context, rs rules.Ruleset) (Greeting, error) {
	snap, err := g.snapshot(ctx)
	if err != nil {
		return Greeting{}, err
	}
	return g.GenerateFrom(ctx, snap, rs), nil
}

// GenerateFrom runs the fan-out against an already-built snapshot.
func (g *Generator) GenerateFrom(ctx context.Context, snap snapshot.Snapshot, rs rules.Ruleset) Greeting {
	log := logging.Get(logging.CategoryProactive)

	outcomes := g.invoker.RunAll(ctx, agents.All(), snap, rs)

	var (
		results []insight.CapabilityResult
		sources []string
	)
	for _, o := range outcomes {
		if o.Err != nil {
			log.Error("proactive agent failed",
				zap.String("agent", string(o.Agent)), zap.Error(o.Err))
			continue
		}
		for i := range o.Findings {
			o.Findings[i].Source = string(o.Agent)
		}
		results = append(results, o.Result())
		if len(o.Findings) > 0 {
			sources = append(sources, string(o.Agent))
		}
	}

	merged := insight.Merge(results...)
	top := insight.TopN(merged, topFindingCount)

	message := g.synthesizer.Greeting(ctx, top, snap.TotalValueCAD, snap.TotalGainLossCAD)

	return Greeting{
		Message:      message,
		TopFindings:  top,
		AgentSources: sources,
	}
}
