// Package agents names the analysis capabilities and runs them against
// portfolio snapshots. Each agent is an opaque LLM-backed routine mapping a
// snapshot plus the tax ruleset to a list of findings.
package agents

import (
	_ "embed"
)

// Agent identifies one analysis capability. The set is closed: routing,
// referral adjacency, and prompt lookup all switch over these constants.
type Agent string

const (
	Allocation      Agent = "allocation"
	TaxImplications Agent = "tax_implications"
	TLH             Agent = "tlh"
	RateArbitrage   Agent = "rate_arbitrage"
	Timing          Agent = "timing"

	// DirectResponse is a referral source, not an invokable agent: it marks
	// turns answered without running any capability.
	DirectResponse Agent = "direct_response"
)

// All returns the invokable agents in canonical order.
func All() []Agent {
	return []Agent{Allocation, TaxImplications, TLH, RateArbitrage, Timing}
}

// Invokable reports whether the agent can actually be run.
func (a Agent) Invokable() bool {
	switch a {
	case Allocation, TaxImplications, TLH, RateArbitrage, Timing:
		return true
	}
	return false
}

// DomainKey returns the key the agent's findings are filed under.
func (a Agent) DomainKey() string {
	switch a {
	case TaxImplications:
		return "tax"
	case RateArbitrage:
		return "rates"
	default:
		return string(a)
	}
}

// Description is the one-line summary used in referral relevance prompts.
func (a Agent) Description() string {
	switch a {
	case Allocation:
		return "TFSA/RRSP/FHSA contribution room, cash placement, registered account gaps"
	case TaxImplications:
		return "tax consequences of trades, capital gains, selling decisions"
	case TLH:
		return "tax-loss harvesting, unrealized losses, superficial loss rule"
	case RateArbitrage:
		return "margin interest vs cash rate, capital inefficiencies"
	case Timing:
		return "RRSP deadline, tax-year end, time-sensitive opportunities"
	default:
		return string(a)
	}
}

// HandoffMessage is the status line emitted before the agent runs.
func (a Agent) HandoffMessage() string {
	switch a {
	case Allocation:
		return "Reviewing your contribution room and cash placement..."
	case TaxImplications:
		return "Analyzing the tax consequences of this trade..."
	case TLH:
		return "Scanning for tax-loss harvesting opportunities..."
	case RateArbitrage:
		return "Comparing your margin rate against your cash position..."
	case Timing:
		return "Checking for time-sensitive deadlines..."
	default:
		return "Running " + string(a) + " analysis..."
	}
}

//go:embed prompts/allocation.txt
var promptAllocation string

//go:embed prompts/tax_implications.txt
var promptTaxImplications string

//go:embed prompts/tlh.txt
var promptTLH string

//go:embed prompts/rate_arbitrage.txt
var promptRateArbitrage string

//go:embed prompts/timing.txt
var promptTiming string

func (a Agent) systemPrompt() string {
	switch a {
	case Allocation:
		return promptAllocation
	case TaxImplications:
		return promptTaxImplications
	case TLH:
		return promptTLH
	case RateArbitrage:
		return promptRateArbitrage
	case Timing:
		return promptTiming
	default:
		return ""
	}
}
