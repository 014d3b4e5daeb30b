package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finsight/internal/agents"
	"finsight/internal/insight"
	"finsight/internal/logging"
	"finsight/internal/proactive"
	"finsight/internal/snapshot"
	"finsight/internal/store"
	"finsight/internal/turn"

	"github.com/google/uuid"
)

type sessionResponse struct {
	SessionID    string            `json:"session_id"`
	Greeting     string            `json:"greeting"`
	TopFindings  []insight.Finding `json:"top_findings"`
	AgentSources []string          `json:"agent_sources"`
	Restored     bool              `json:"restored,omitempty"`
}

// handleCreateSession creates or restores today's session. A fresh session
// runs the full proactive fan-out for its greeting; a restored one replays
// the stored greeting text.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	existing, err := s.deps.Store.TodayConversation(store.DemoUserID, now)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if existing != nil {
		greeting := "Welcome back. Ask me anything."
		var stored proactive.Greeting
		if raw, ok := existing.LastFindings[store.GreetingDataKey]; ok {
			if err := json.Unmarshal(raw, &stored); err == nil && stored.Message != "" {
				greeting = stored.Message
			}
		}
		writeJSON(w, http.StatusOK, sessionResponse{
			SessionID:    existing.SessionID,
			Greeting:     greeting,
			TopFindings:  []insight.Finding{},
			AgentSources: []string{},
			Restored:     true,
		})
		return
	}

	greeting, err := s.deps.Proactive.Generate(ctx, s.deps.Rules.Current())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sessionID := store.NewSessionID(now)
	snapshotJSON, _ := json.Marshal(map[string]any{"top_findings": greeting.TopFindings})
	initial := store.Message{
		Role:             "assistant",
		Content:          greeting.Message,
		Timestamp:        now.Format(time.RFC3339),
		AgentSources:     greeting.AgentSources,
		FindingsSnapshot: snapshotJSON,
	}
	greetingJSON, err := json.Marshal(greeting)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if _, err := s.deps.Store.CreateConversation(store.DemoUserID, sessionID,
		[]store.Message{initial},
		map[string]json.RawMessage{store.GreetingDataKey: greetingJSON}); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:    sessionID,
		Greeting:     greeting.Message,
		TopFindings:  greeting.TopFindings,
		AgentSources: greeting.AgentSources,
	})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Store.ClearToday(store.DemoUserID, time.Now().UTC()); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	conv, err := s.deps.Store.ConversationBySession(r.PathValue("id"))
	if errors.Is(err, store.ErrSessionNotFound) {
		httpError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    conv.SessionID,
		"messages":      conv.Messages,
		"last_findings": conv.LastFindings,
		"created_at":    conv.CreatedAt.Format(time.RFC3339),
		"updated_at":    conv.UpdatedAt.Format(time.RFC3339),
	})
}

type chatMessageRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// handleChatMessage streams one turn over SSE. The session is validated
// before the stream opens so a missing session still gets a plain 404.
func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var body chatMessageRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if _, err := s.deps.Store.ConversationBySession(body.SessionID); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			httpError(w, http.StatusNotFound, "Session not found")
			return
		}
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stream, ok := newSSEStream(w)
	if !ok {
		httpError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	err := s.deps.Orchestrator.Run(r.Context(), body.SessionID, body.Message,
		func(e turn.Event) error {
			return stream.send(string(e.Type), e.Data)
		})
	if err != nil {
		// Terminal error event already emitted by the orchestrator.
		logging.Get(logging.CategoryAPI).Warn("chat turn ended with error",
			zap.String("session_id", body.SessionID), zap.Error(err))
	}
}

type whatIfRequest struct {
	SessionID  string             `json:"session_id"`
	Scenario   snapshot.Scenario  `json:"scenario"`
	Parameters map[string]float64 `json:"parameters"`
}

var scenarioAgents = map[snapshot.Scenario][]agents.Agent{
	snapshot.ScenarioRRSPContribution: {agents.Allocation, agents.Timing},
	snapshot.ScenarioTFSAContribution: {agents.Allocation},
	snapshot.ScenarioPayMargin:        {agents.RateArbitrage},
	snapshot.ScenarioSellPosition:     {agents.TaxImplications, agents.TLH},
}

// handleWhatIf runs the scenario's agents against both the baseline and the
// hypothetically modified snapshot and returns a side-by-side delta.
func (s *Server) handleWhatIf(w http.ResponseWriter, r *http.Request) {
	var body whatIfRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if _, err := s.deps.Store.ConversationBySession(body.SessionID); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			httpError(w, http.StatusNotFound, "Session not found")
			return
		}
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx := r.Context()
	baseline, err := s.deps.Snapshot(ctx)
	if err != nil {
		httpError(w, http.StatusBadGateway, err.Error())
		return
	}
	modified := baseline.Apply(body.Scenario, body.Parameters["amount"])

	toRun, ok := scenarioAgents[body.Scenario]
	if !ok {
		toRun = []agents.Agent{agents.Allocation, agents.Timing}
	}

	rs := s.deps.Rules.Current()
	var baselineFindings, modifiedFindings []insight.Finding
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		baselineFindings = collectFindings(s.deps.Invoker.RunAll(gctx, toRun, baseline, rs))
		return nil
	})
	g.Go(func() error {
		modifiedFindings = collectFindings(s.deps.Invoker.RunAll(gctx, toRun, modified, rs))
		return nil
	})
	_ = g.Wait()

	writeJSON(w, http.StatusOK, map[string]any{
		"scenario":          body.Scenario,
		"parameters":        body.Parameters,
		"agents_run":        toRun,
		"baseline_findings": baselineFindings,
		"modified_findings": modifiedFindings,
		"delta":             insight.Delta(baselineFindings, modifiedFindings),
	})
}

func collectFindings(outcomes []agents.Outcome) []insight.Finding {
	results := make([]insight.CapabilityResult, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err != nil {
			continue
		}
		results = append(results, o.Result())
	}
	return insight.Merge(results...)
}

// handleAnalyze runs the full fan-out once and returns the merged insight
// list, the batch-analysis counterpart of the chat surface.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := s.deps.Snapshot(ctx)
	if err != nil {
		httpError(w, http.StatusBadGateway, err.Error())
		return
	}

	insights := collectFindings(s.deps.Invoker.RunAll(ctx, agents.All(), snap, s.deps.Rules.Current()))
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":        uuid.NewString(),
		"insight_count": len(insights),
		"insights":      insights,
	})
}
