// Package portfolio assembles live snapshots from stored holdings and
// market quotes. It is the single snapshot source for chat turns, the
// background monitor, the advisor, and the portfolio endpoint.
package portfolio

import (
	"context"
	"fmt"
	"time"

	"finsight/internal/prices"
	"finsight/internal/snapshot"
	"finsight/internal/store"
)

// Service builds snapshots for one user.
type Service struct {
	store  *store.Store
	prices *prices.Service
	userID int64
}

func NewService(st *store.Store, pr *prices.Service, userID int64) *Service {
	return &Service{store: st, prices: pr, userID: userID}
}

// Snapshot loads accounts and positions and prices them with live quotes.
// Quote failures degrade to cost-basis pricing inside the builder.
func (s *Service) Snapshot(ctx context.Context) (snapshot.Snapshot, error) {
	accounts, err := s.store.Accounts(s.userID)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("failed to load accounts: %w", err)
	}
	positions, err := s.store.Positions(s.userID)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("failed to load positions: %w", err)
	}

	tickers := make([]string, 0, len(positions))
	seen := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		if _, ok := seen[p.Ticker]; ok {
			continue
		}
		seen[p.Ticker] = struct{}{}
		tickers = append(tickers, p.Ticker)
	}

	quotes := s.prices.Batch(ctx, tickers)
	return snapshot.Build(accounts, positions, quotes, time.Now().UTC()), nil
}

// Summary is the compact portfolio description embedded in advisor and
// greeting prompts instead of the full snapshot.
type Summary struct {
	TotalValueCAD float64          `json:"total_value_cad"`
	Accounts      []AccountSummary `json:"accounts"`
}

type AccountSummary struct {
	AccountType               string   `json:"account_type"`
	ProductName               string   `json:"product_name"`
	TotalValueCAD             float64  `json:"total_value_cad"`
	ContributionRoomRemaining *float64 `json:"contribution_room_remaining"`
}

// Summarize reduces a snapshot to the fields the advisor prompt needs.
func Summarize(snap snapshot.Snapshot) Summary {
	out := Summary{TotalValueCAD: snap.TotalValueCAD}
	for _, acct := range snap.Accounts {
		out.Accounts = append(out.Accounts, AccountSummary{
			AccountType:               acct.AccountType,
			ProductName:               acct.ProductName,
			TotalValueCAD:             acct.TotalValueCAD,
			ContributionRoomRemaining: acct.ContributionRoomRemaining,
		})
	}
	return out
}
