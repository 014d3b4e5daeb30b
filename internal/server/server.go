// Package server exposes the HTTP and SSE surface: chat sessions and
// streamed turns, what-if analysis, portfolio and trade endpoints, monitor
// alerts, and the advisor report.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"finsight/internal/advisor"
	"finsight/internal/agents"
	"finsight/internal/config"
	"finsight/internal/intercept"
	"finsight/internal/logging"
	"finsight/internal/monitor"
	"finsight/internal/prices"
	"finsight/internal/proactive"
	"finsight/internal/rules"
	"finsight/internal/snapshot"
	"finsight/internal/store"
	"finsight/internal/turn"
)

// SnapshotFunc builds the live portfolio snapshot for request handlers.
type SnapshotFunc func(ctx context.Context) (snapshot.Snapshot, error)

// Deps carries everything the handlers need.
type Deps struct {
	Config       config.ServerConfig
	Store        *store.Store
	Orchestrator *turn.Orchestrator
	Proactive    *proactive.Generator
	Advisor      *advisor.Generator
	Intercept    *intercept.Checker
	Invoker      *agents.Invoker
	Prices       *prices.Service
	Snapshot     SnapshotFunc
	Rules        *rules.Provider
	Alerts       *monitor.Broadcaster
}

// Server is the HTTP surface.
type Server struct {
	deps Deps
}

func New(deps Deps) *Server {
	return &Server{deps: deps}
}

// Handler builds the routing table with CORS, auth, and logging applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /chat/session", s.handleCreateSession)
	mux.HandleFunc("DELETE /chat/session", s.handleClearSession)
	mux.HandleFunc("GET /chat/session/{id}", s.handleGetSession)
	mux.HandleFunc("POST /chat/message", s.handleChatMessage)
	mux.HandleFunc("POST /chat/whatif", s.handleWhatIf)

	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("GET /portfolio", s.handlePortfolio)

	mux.HandleFunc("POST /trade/buy", s.handleTradeBuy)
	mux.HandleFunc("POST /trade/sell", s.handleTradeSell)
	mux.HandleFunc("POST /trade/intercept", s.handleTradeIntercept)

	mux.HandleFunc("GET /monitor/alerts", s.handleMonitorAlerts)
	mux.HandleFunc("POST /monitor/alerts/{id}/dismiss", s.handleDismissAlert)
	mux.HandleFunc("GET /monitor/stream", s.handleMonitorStream)

	mux.HandleFunc("POST /advisor/report", s.handleAdvisorReport)

	return s.withCORS(s.withAuth(s.withLogging(mux)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Get(logging.CategoryAPI).Warn("failed to write response", zap.Error(err))
	}
}

func httpError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
