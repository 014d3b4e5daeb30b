package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/insight"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSeedDemo_Idempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SeedDemo())
	require.NoError(t, s.SeedDemo())

	accounts, err := s.Accounts(DemoUserID)
	require.NoError(t, err)
	assert.Len(t, accounts, 7)

	byType := make(map[string]Account)
	for _, a := range accounts {
		byType[a.AccountType] = a
	}

	assert.False(t, byType["fhsa"].IsActive)
	require.NotNil(t, byType["fhsa"].ContributionRoomRemaining)
	assert.Equal(t, 8000.0, *byType["fhsa"].ContributionRoomRemaining)

	assert.Equal(t, -8000.0, byType["margin"].BalanceCAD)
	assert.Equal(t, "2027-03-01", byType["rrsp"].ContributionDeadline)

	positions, err := s.Positions(DemoUserID)
	require.NoError(t, err)
	assert.Len(t, positions, 6)
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	id := NewSessionID(now)
	assert.Regexp(t, `^chat-2026-08-29-[0-9a-f]{8}$`, id)

	greeting := Message{Role: "assistant", Content: "Welcome back.", Timestamp: now.Format(time.RFC3339), AgentSources: []string{"allocation"}}
	_, err := s.CreateConversation(DemoUserID, id, []Message{greeting},
		map[string]json.RawMessage{GreetingDataKey: json.RawMessage(`{"message":"Welcome back."}`)})
	require.NoError(t, err)

	today, err := s.TodayConversation(DemoUserID, now)
	require.NoError(t, err)
	require.NotNil(t, today)
	assert.Equal(t, id, today.SessionID)
	require.Len(t, today.Messages, 1)
	assert.Equal(t, "Welcome back.", today.Messages[0].Content)

	// Greeting data is not a findings domain.
	assert.Empty(t, today.DomainFindings())

	findings := map[string][]insight.Finding{
		"tax": {{
			Title: "Harvest CNQ loss", DollarImpact: 270,
			ImpactDirection: insight.DirectionSave, Urgency: insight.UrgencyThisMonth,
			Reasoning: "r", Confidence: insight.ConfidenceHigh, WhatToDo: "w",
		}},
	}
	require.NoError(t, s.AppendExchange(id, "should I sell?", "Here is the answer.", []string{"tax_implications"}, findings))

	loaded, err := s.ConversationBySession(id)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 3)
	assert.Equal(t, "user", loaded.Messages[1].Role)
	assert.Equal(t, "assistant", loaded.Messages[2].Role)
	assert.Equal(t, []string{"tax_implications"}, loaded.Messages[2].AgentSources)

	domains := loaded.DomainFindings()
	require.Contains(t, domains, "tax")
	assert.Equal(t, "Harvest CNQ loss", domains["tax"][0].Title)

	require.NoError(t, s.ClearToday(DemoUserID, now))
	_, err = s.ConversationBySession(id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	gone, err := s.TodayConversation(DemoUserID, now)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestAlertLifecycle(t *testing.T) {
	s := openTestStore(t)

	a, err := s.InsertAlert(Alert{
		UserID: DemoUserID, AlertType: "tlh_window", Ticker: "CNQ.TO",
		Message: "A new harvesting window just opened on CNQ.TO", DollarImpact: 270,
	})
	require.NoError(t, err)
	require.NotZero(t, a.ID)

	pending, err := s.PendingAlerts(DemoUserID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "tlh_window", pending[0].AlertType)

	require.NoError(t, s.MarkSurfaced(a.ID))
	pending, err = s.PendingAlerts(DemoUserID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	b, err := s.InsertAlert(Alert{UserID: DemoUserID, AlertType: "margin_interest", Message: "m", DollarImpact: 124})
	require.NoError(t, err)
	require.NoError(t, s.DismissAlert(b.ID))
	pending, err = s.PendingAlerts(DemoUserID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAdvisorCache(t *testing.T) {
	s := openTestStore(t)

	got, err := s.CachedAdvisorReport(DemoUserID, 10*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, got)

	r := AdvisorReport{
		UserID: DemoUserID, Headline: "H", FullPicture: "F", DoNotDo: "D",
		TotalOpportunity: 9200, Chips: []string{"chip?"},
		GeneratedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveAdvisorReport(r))

	got, err = s.CachedAdvisorReport(DemoUserID, 10*time.Minute)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "H", got.Headline)
	assert.Equal(t, int64(9200), got.TotalOpportunity)
	assert.Equal(t, []string{"chip?"}, got.Chips)

	// Same row is stale under a tighter age limit.
	got, err = s.CachedAdvisorReport(DemoUserID, time.Nanosecond)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestApplyTrade(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SeedDemo())

	accounts, err := s.Accounts(DemoUserID)
	require.NoError(t, err)
	var nonReg Account
	for _, a := range accounts {
		if a.AccountType == "non_registered" {
			nonReg = a
		}
	}

	// Sell 10 SHOP.TO at $120: cash up, shares down.
	require.NoError(t, s.ApplyTrade(DemoUserID, nonReg.ID, "SHOP.TO", 10, 120, "sell"))

	positions, err := s.Positions(DemoUserID)
	require.NoError(t, err)
	var shop *Position
	for i := range positions {
		if positions[i].Ticker == "SHOP.TO" {
			shop = &positions[i]
		}
	}
	require.NotNil(t, shop)
	assert.InDelta(t, 30, shop.Shares, 1e-9)

	accounts, err = s.Accounts(DemoUserID)
	require.NoError(t, err)
	for _, a := range accounts {
		if a.ID == nonReg.ID {
			assert.InDelta(t, 1150+1200, a.BalanceCAD, 1e-9)
		}
	}

	// Buy a brand new ticker.
	require.NoError(t, s.ApplyTrade(DemoUserID, nonReg.ID, "ENB.TO", 20, 50, "buy"))
	positions, err = s.Positions(DemoUserID)
	require.NoError(t, err)
	found := false
	for _, p := range positions {
		if p.Ticker == "ENB.TO" {
			found = true
			assert.InDelta(t, 20, p.Shares, 1e-9)
			assert.InDelta(t, 50, p.AvgCostCAD, 1e-9)
		}
	}
	assert.True(t, found)
}
