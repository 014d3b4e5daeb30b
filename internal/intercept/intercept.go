// Package intercept runs the pre-trade check: simulate the trade, run the
// relevant agents against the simulated portfolio, and surface material
// findings before the trade executes. The check is advisory and fails open:
// nothing here ever blocks a trade on its own.
package intercept

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"finsight/internal/agents"
	"finsight/internal/insight"
	"finsight/internal/logging"
	"finsight/internal/rules"
	"finsight/internal/snapshot"
)

const (
	// DefaultDeadline bounds the whole check; slower than this and the
	// trade proceeds unexamined.
	DefaultDeadline = 8 * time.Second

	// DefaultMaterialThreshold is the minimum |dollar impact| worth
	// interrupting a trade for.
	DefaultMaterialThreshold = 50.0
)

// Request describes the trade about to execute.
type Request struct {
	AccountID int64
	Ticker    string
	Shares    float64
	Action    snapshot.TradeAction
}

// Verdict is the check's outcome. ShouldIntercept false means let it
// through; everything else is only populated when true.
type Verdict struct {
	ShouldIntercept    bool              `json:"should_intercept"`
	Urgency            string            `json:"urgency,omitempty"`
	Headline           string            `json:"headline,omitempty"`
	Findings           []insight.Finding `json:"findings,omitempty"`
	BetterAlternative  string            `json:"better_alternative,omitempty"`
	ProceedAnywayLabel string            `json:"proceed_anyway_label,omitempty"`
}

// Checker runs pre-trade checks.
type Checker struct {
	invoker   *agents.Invoker
	deadline  time.Duration
	threshold float64
}

func NewChecker(invoker *agents.Invoker, deadline time.Duration, threshold float64) *Checker {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	if threshold <= 0 {
		threshold = DefaultMaterialThreshold
	}
	return &Checker{invoker: invoker, deadline: deadline, threshold: threshold}
}

// Check simulates the trade against the given snapshot and runs the
// selected agents under the deadline. Any failure, timeout included,
// yields a no-intercept verdict.
func (c *Checker) Check(ctx context.Context, snap snapshot.Snapshot, rs rules.Ruleset, req Request) Verdict {
	log := logging.Get(logging.CategoryAgents)

	simulated := snap.SimulateTrade(req.AccountID, req.Ticker, req.Shares, req.Action)
	selected := selectAgents(snap, req)

	log.Info("pre-trade check",
		zap.String("ticker", req.Ticker),
		zap.String("action", string(req.Action)),
		zap.Int("agents", len(selected)))

	outcomes := c.invoker.RunAllWithin(ctx, c.deadline, selected, simulated, rs)

	var all []insight.CapabilityResult
	for _, o := range outcomes {
		if o.Err != nil {
			log.Warn("pre-trade agent failed", zap.String("agent", string(o.Agent)), zap.Error(o.Err))
			continue
		}
		all = append(all, o.Result())
	}

	merged := insight.Merge(all...)
	var material []insight.Finding
	for _, f := range merged {
		if math.Abs(f.DollarImpact) >= c.threshold {
			material = append(material, f)
		}
	}
	if len(material) == 0 {
		log.Info("no material findings, not intercepting", zap.String("ticker", req.Ticker))
		return Verdict{ShouldIntercept: false}
	}

	sort.SliceStable(material, func(i, j int) bool {
		return math.Abs(material[i].DollarImpact) > math.Abs(material[j].DollarImpact)
	})
	top := material[0]

	verdict := Verdict{
		ShouldIntercept:    true,
		Urgency:            urgencyLevel(top.Urgency),
		Headline:           headline(top),
		BetterAlternative:  betterAlternative(material),
		ProceedAnywayLabel: proceedLabel(req),
	}
	if len(material) > 3 {
		material = material[:3]
	}
	verdict.Findings = material
	return verdict
}

// selectAgents picks the minimum agent set for the trade. Every trade has
// tax implications; the rest depend on direction and account type.
func selectAgents(snap snapshot.Snapshot, req Request) []agents.Agent {
	selected := []agents.Agent{agents.TaxImplications}

	target := snap.AccountByID(req.AccountID)
	if target == nil {
		return selected
	}

	if req.Action == snapshot.TradeSell {
		hasGain := false
		for _, pos := range target.Positions {
			if strings.EqualFold(pos.Ticker, req.Ticker) && pos.UnrealizedGainLossCAD > 0 {
				hasGain = true
				break
			}
		}
		anyLosses := false
		for _, acct := range snap.Accounts {
			for _, pos := range acct.Positions {
				if pos.UnrealizedGainLossCAD < 0 {
					anyLosses = true
				}
			}
		}
		if hasGain && anyLosses {
			selected = append(selected, agents.TLH)
		}
	}

	switch target.AccountType {
	case "rrsp", "tfsa", "fhsa":
		selected = append(selected, agents.Allocation)
	}

	if req.Action == snapshot.TradeBuy {
		selected = append(selected, agents.RateArbitrage)
	}

	return selected
}

func urgencyLevel(u insight.Urgency) string {
	switch u {
	case insight.UrgencyImmediate, insight.UrgencyThisMonth:
		return "warning"
	default:
		return "info"
	}
}

func headline(top insight.Finding) string {
	h := top.Title
	if top.DollarImpact != 0 && !strings.HasSuffix(h, ".") {
		h = fmt.Sprintf("%s — $%.0f %s at stake.", h, top.DollarImpact, top.ImpactDirection)
	}
	return h
}

// betterAlternative surfaces the what-to-do from the first harvesting
// finding, when one exists.
func betterAlternative(material []insight.Finding) string {
	for _, f := range material {
		text := strings.ToLower(f.Title + f.WhatToDo)
		for _, kw := range []string{"harvest", "loss", "tlh", "offset"} {
			if strings.Contains(text, kw) {
				return f.WhatToDo
			}
		}
	}
	return ""
}

func proceedLabel(req Request) string {
	verb := "Buy"
	if req.Action == snapshot.TradeSell {
		verb = "Sell"
	}
	return fmt.Sprintf("%s %s anyway", verb, strings.ToUpper(req.Ticker))
}
