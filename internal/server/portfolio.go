package server

import (
	"net/http"
	"time"

	"finsight/internal/intercept"
	"finsight/internal/snapshot"
	"finsight/internal/store"
)

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Snapshot(r.Context())
	if err != nil {
		httpError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type tradeRequest struct {
	AccountID int64   `json:"account_id"`
	Ticker    string  `json:"ticker"`
	Shares    float64 `json:"shares"`
}

func (s *Server) handleTradeBuy(w http.ResponseWriter, r *http.Request) {
	s.executeTrade(w, r, snapshot.TradeBuy)
}

func (s *Server) handleTradeSell(w http.ResponseWriter, r *http.Request) {
	s.executeTrade(w, r, snapshot.TradeSell)
}

// executeTrade prices the order at the live quote and applies it to the
// account, recording the ledger entry.
func (s *Server) executeTrade(w http.ResponseWriter, r *http.Request, action snapshot.TradeAction) {
	var body tradeRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Ticker == "" || body.Shares <= 0 {
		httpError(w, http.StatusBadRequest, "ticker and positive shares required")
		return
	}

	quote := s.deps.Prices.Current(r.Context(), body.Ticker)
	if quote.CADPrice <= 0 {
		httpError(w, http.StatusBadGateway, "no quote available for "+body.Ticker)
		return
	}

	if err := s.deps.Store.ApplyTrade(store.DemoUserID, body.AccountID,
		body.Ticker, body.Shares, quote.CADPrice, string(action)); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}

	total := body.Shares * quote.CADPrice
	if _, err := s.deps.Store.InsertTransaction(store.Transaction{
		AccountID:       body.AccountID,
		UserID:          store.DemoUserID,
		TransactionType: string(action),
		Ticker:          body.Ticker,
		Shares:          body.Shares,
		PriceCAD:        quote.CADPrice,
		TotalCAD:        total,
		ExecutedAt:      time.Now().UTC(),
	}); err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"ticker":    body.Ticker,
		"shares":    body.Shares,
		"price_cad": quote.CADPrice,
		"total_cad": total,
		"action":    action,
	})
}

type interceptRequest struct {
	AccountID int64   `json:"account_id"`
	Ticker    string  `json:"ticker"`
	Shares    float64 `json:"shares"`
	Action    string  `json:"action"`
}

// handleTradeIntercept runs the pre-trade check against the live snapshot.
func (s *Server) handleTradeIntercept(w http.ResponseWriter, r *http.Request) {
	var body interceptRequest
	if !decodeBody(w, r, &body) {
		return
	}

	snap, err := s.deps.Snapshot(r.Context())
	if err != nil {
		httpError(w, http.StatusBadGateway, err.Error())
		return
	}

	verdict := s.deps.Intercept.Check(r.Context(), snap, s.deps.Rules.Current(), intercept.Request{
		AccountID: body.AccountID,
		Ticker:    body.Ticker,
		Shares:    body.Shares,
		Action:    snapshot.TradeAction(body.Action),
	})
	writeJSON(w, http.StatusOK, verdict)
}
