// Package turn orchestrates one chat exchange: routing, optional external
// context lookup, agent fan-out, response synthesis, the auto-referral hop,
// follow-up chips, and persistence, streamed to the client as typed events.
package turn

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"finsight/internal/agents"
	"finsight/internal/insight"
	"finsight/internal/logging"
	"finsight/internal/referral"
	"finsight/internal/router"
	"finsight/internal/rules"
	"finsight/internal/search"
	"finsight/internal/snapshot"
	"finsight/internal/store"
	"finsight/internal/synthesis"
)

// EmitFunc delivers one event to the client. A non-nil return means the
// client is gone; the turn aborts and nothing is persisted.
type EmitFunc func(Event) error

// SnapshotFunc builds the fresh portfolio snapshot for the turn. Cached or
// session-stored portfolio data is never used.
type SnapshotFunc func(ctx context.Context) (snapshot.Snapshot, error)

// Deps carries the orchestrator's collaborators.
type Deps struct {
	Store       *store.Store
	Router      *router.Router
	Invoker     *agents.Invoker
	Expander    *referral.Expander
	Synthesizer *synthesis.Synthesizer
	Search      *search.Client
	Snapshot    SnapshotFunc
	Rules       *rules.Provider

	// ReferralBudget caps auto-referral hops per turn; zero means the
	// default of one.
	ReferralBudget int
}

// Orchestrator drives chat turns.
type Orchestrator struct {
	deps   Deps
	budget int
}

func NewOrchestrator(deps Deps) *Orchestrator {
	budget := deps.ReferralBudget
	if budget < 1 {
		budget = referral.DefaultBudget
	}
	return &Orchestrator{deps: deps, budget: budget}
}

// Run executes one turn for the session. A missing session returns
// store.ErrSessionNotFound before any event is emitted, so the server can
// still answer with a plain status code. Any fault after streaming starts
// becomes a terminal error event and the turn persists nothing.
func (o *Orchestrator) Run(ctx context.Context, sessionID, message string, emit EmitFunc) error {
	conv, err := o.deps.Store.ConversationBySession(sessionID)
	if err != nil {
		return err
	}

	if err := o.run(ctx, conv, message, emit); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Get(logging.CategoryTurn).Error("turn failed",
			zap.String("session_id", sessionID), zap.Error(err))
		_ = emit(Event{Type: EventError, Data: ErrorData{Message: err.Error()}})
		return err
	}
	return nil
}

// turnRun is the per-turn mutable state: which agents already ran, how many
// referral hops were spent, and what will be persisted.
type turnRun struct {
	conv         *store.Conversation
	message      string
	history      []router.Record
	lastFindings map[string][]insight.Finding
	snap         snapshot.Snapshot
	rs           rules.Ruleset
	webResults   []search.Result
	emit         EmitFunc

	invoked       map[agents.Agent]bool
	referralsUsed int
	refAgents     []agents.Agent
	finalResponse string
	allFindings   map[string][]insight.Finding
}

func (o *Orchestrator) run(ctx context.Context, conv *store.Conversation, message string, emit EmitFunc) error {
	snap, err := o.deps.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to build portfolio snapshot: %w", err)
	}

	history := make([]router.Record, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		history = append(history, router.Record{Role: m.Role, Content: m.Content})
	}

	t := &turnRun{
		conv:         conv,
		message:      message,
		history:      history,
		lastFindings: conv.DomainFindings(),
		snap:         snap,
		rs:           o.deps.Rules.Current(),
		emit:         emit,
		invoked:      make(map[agents.Agent]bool),
		allFindings:  make(map[string][]insight.Finding),
	}

	decision := o.deps.Router.Route(ctx, message, history, t.lastFindings)
	if err := emit(Event{Type: EventRouting, Data: RoutingData{
		AgentsToInvoke:       decision.AgentsToInvoke,
		RoutingReasoning:     decision.Reasoning,
		CanAnswerFromContext: decision.CanAnswerFromContext,
		NeedsContextLookup:   decision.NeedsContextLookup,
	}}); err != nil {
		return err
	}

	if decision.NeedsContextLookup && decision.ContextQuery != "" {
		if err := o.contextLookup(ctx, t, decision.ContextQuery); err != nil {
			return err
		}
	}

	if decision.CanAnswerFromContext || len(decision.AgentsToInvoke) == 0 {
		return o.directTurn(ctx, t, decision)
	}
	return o.agenticTurn(ctx, t, decision)
}

// contextLookup runs the external search between the routing and response
// events. Lookup failure is reported on the complete event and the turn
// proceeds without external context.
func (o *Orchestrator) contextLookup(ctx context.Context, t *turnRun, query string) error {
	if err := t.emit(Event{Type: EventContextLookupStart, Data: ContextLookupStartData{Query: query}}); err != nil {
		return err
	}
	results, err := o.deps.Search.Lookup(ctx, query)
	if err != nil {
		logging.Get(logging.CategoryTurn).Warn("context lookup failed", zap.Error(err))
		return t.emit(Event{Type: EventContextLookupComplete, Data: ContextLookupCompleteData{
			Results: []search.Result{}, Error: err.Error(),
		}})
	}
	t.webResults = results
	return t.emit(Event{Type: EventContextLookupComplete, Data: ContextLookupCompleteData{
		ResultCount: len(results), Results: results,
	}})
}

// directTurn answers without a primary fan-out: the router's own direct
// response (re-synthesized when external context arrived), then the usual
// referral hop, chips, and persistence.
func (o *Orchestrator) directTurn(ctx context.Context, t *turnRun, decision router.Decision) error {
	direct := decision.DirectResponse
	if len(t.webResults) > 0 {
		findings := t.lastFindings
		if direct == "" {
			findings = nil
		}
		direct = o.deps.Synthesizer.Respond(ctx, t.message, findings, t.history, t.webResults)
	}

	if err := t.emit(Event{Type: EventResponse, Data: ResponseData{Text: direct}}); err != nil {
		return err
	}
	if err := o.emitSources(t); err != nil {
		return err
	}

	t.invoked[agents.DirectResponse] = true
	t.finalResponse = direct
	for domain, findings := range t.lastFindings {
		t.allFindings[domain] = findings
	}

	if err := o.runReferrals(ctx, t, []agents.Agent{agents.DirectResponse}, direct, t.allFindings); err != nil {
		return err
	}
	if err := o.emitFollowUps(ctx, t); err != nil {
		return err
	}
	if err := t.emit(Event{Type: EventDone, Data: DoneData{SessionID: t.conv.SessionID}}); err != nil {
		return err
	}

	// Direct turns persist only the referral agents as sources.
	return o.persist(ctx, t, agentNames(t.refAgents))
}

// agenticTurn runs the routed fan-out, synthesizes the primary response,
// then hands off to the shared referral/chips/persist tail.
func (o *Orchestrator) agenticTurn(ctx context.Context, t *turnRun, decision router.Decision) error {
	invoked := decision.AgentsToInvoke
	for _, a := range invoked {
		t.invoked[a] = true
	}
	for _, a := range invoked {
		if err := t.emit(Event{Type: EventAgentStart, Data: AgentStartData{Agent: a}}); err != nil {
			return err
		}
		if err := t.emit(Event{Type: EventHandoff, Data: HandoffData{Agent: a, Message: a.HandoffMessage()}}); err != nil {
			return err
		}
	}

	outcomes := o.deps.Invoker.RunAll(ctx, invoked, t.snap, t.rs)
	for _, oc := range outcomes {
		if oc.Err != nil {
			if err := t.emit(Event{Type: EventAgentComplete, Data: AgentCompleteData{
				Agent: oc.Agent, Error: oc.Err.Error(),
			}}); err != nil {
				return err
			}
			continue
		}
		t.allFindings[oc.Agent.DomainKey()] = oc.Findings
		if err := t.emit(Event{Type: EventAgentComplete, Data: AgentCompleteData{
			Agent: oc.Agent, FindingCount: len(oc.Findings),
		}}); err != nil {
			return err
		}
	}

	responseText := o.deps.Synthesizer.Respond(ctx, t.message, t.allFindings, t.history, t.webResults)
	t.finalResponse = responseText
	if err := t.emit(Event{Type: EventResponse, Data: ResponseData{Text: responseText}}); err != nil {
		return err
	}
	if err := o.emitSources(t); err != nil {
		return err
	}

	if err := o.runReferrals(ctx, t, invoked, responseText, t.allFindings); err != nil {
		return err
	}
	if err := o.emitFollowUps(ctx, t); err != nil {
		return err
	}

	sources := agentNames(invoked)
	sources = append(sources, agentNames(t.refAgents)...)
	if len(t.webResults) > 0 {
		sources = append(sources, "web_search")
	}
	if err := o.persist(ctx, t, sources); err != nil {
		return err
	}
	return t.emit(Event{Type: EventDone, Data: DoneData{SessionID: t.conv.SessionID}})
}

// runReferrals spends the referral budget: evaluate candidates, run each
// accepted agent, and synthesize a follow-up answer from its findings. A
// failed referral agent is reported and skipped; the turn continues.
func (o *Orchestrator) runReferrals(ctx context.Context, t *turnRun, sources []agents.Agent, responseText string, checkFindings map[string][]insight.Finding) error {
	referrals := o.deps.Expander.Evaluate(ctx, sources, t.invoked, t.message, responseText, checkFindings)
	for _, ref := range referrals {
		if t.referralsUsed >= o.budget {
			break
		}
		if t.invoked[ref.Agent] {
			continue
		}
		if err := t.emit(Event{Type: EventHandoff, Data: HandoffData{
			Agent: ref.Agent, Message: referral.HandoffMessage(sources, ref.Agent),
		}}); err != nil {
			return err
		}
		if err := t.emit(Event{Type: EventAgentStart, Data: AgentStartData{Agent: ref.Agent}}); err != nil {
			return err
		}

		findings, err := o.deps.Invoker.Run(ctx, ref.Agent, t.snap, t.rs)
		if err != nil {
			logging.Get(logging.CategoryTurn).Warn("referral agent failed",
				zap.String("agent", string(ref.Agent)), zap.Error(err))
			if err := t.emit(Event{Type: EventAgentComplete, Data: AgentCompleteData{
				Agent: ref.Agent, Error: err.Error(),
			}}); err != nil {
				return err
			}
			continue
		}
		if err := t.emit(Event{Type: EventAgentComplete, Data: AgentCompleteData{
			Agent: ref.Agent, FindingCount: len(findings),
		}}); err != nil {
			return err
		}

		domain := ref.Agent.DomainKey()
		t.allFindings[domain] = findings
		t.invoked[ref.Agent] = true
		t.refAgents = append(t.refAgents, ref.Agent)
		t.referralsUsed++

		followup := o.deps.Synthesizer.Respond(ctx, t.message,
			map[string][]insight.Finding{domain: findings}, t.history, t.webResults)
		t.finalResponse = followup
		if err := t.emit(Event{Type: EventAutoReferralResponse, Data: AutoReferralResponseData{
			Agent: ref.Agent, Text: followup,
		}}); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) emitSources(t *turnRun) error {
	if len(t.webResults) == 0 {
		return nil
	}
	return t.emit(Event{Type: EventSources, Data: SourcesData{Sources: t.webResults}})
}

func (o *Orchestrator) emitFollowUps(ctx context.Context, t *turnRun) error {
	chips := o.deps.Synthesizer.FollowUps(ctx, t.message, t.finalResponse, t.allFindings)
	if chips == nil {
		chips = []string{}
	}
	return t.emit(Event{Type: EventFollowUps, Data: FollowUpsData{Chips: chips}})
}

// persist appends the exchange to the conversation. A cancelled turn
// persists nothing.
func (o *Orchestrator) persist(ctx context.Context, t *turnRun, sources []string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := o.deps.Store.AppendExchange(t.conv.SessionID, t.message, t.finalResponse, sources, t.allFindings); err != nil {
		return fmt.Errorf("failed to persist exchange: %w", err)
	}
	return nil
}

func agentNames(list []agents.Agent) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, string(a))
	}
	return out
}
