package intercept

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/agents"
	"finsight/internal/snapshot"
)

// analystClient answers per-agent based on the analyst named in the system
// prompt, and records who was invoked.
type analystClient struct {
	mu      sync.Mutex
	replies map[string]string // analyst keyword -> findings JSON
	delay   time.Duration
	invoked []string
}

var analystKeywords = []string{
	"allocation analyst",
	"tax-implications analyst",
	"tax-loss-harvesting analyst",
	"rate-arbitrage analyst",
	"timing analyst",
}

func (c *analystClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, prompt, "")
}

func (c *analystClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	for _, kw := range analystKeywords {
		if strings.Contains(system, kw) {
			c.mu.Lock()
			c.invoked = append(c.invoked, kw)
			reply := c.replies[kw]
			c.mu.Unlock()
			if reply == "" {
				reply = `{"findings": []}`
			}
			return reply, nil
		}
	}
	return `{"findings": []}`, nil
}

func (c *analystClient) sawAnalyst(kw string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, got := range c.invoked {
		if got == kw {
			return true
		}
	}
	return false
}

func findingsReply(title string, impact float64, urgency, whatToDo string) string {
	return fmt.Sprintf(`{"findings": [{"title":%q,"dollar_impact":%v,"impact_direction":"avoid",
		"urgency":%q,"reasoning":"r","confidence":"high","what_to_do":%q}]}`,
		title, impact, urgency, whatToDo)
}

// tradeSnapshot holds a non-registered SHOP gain and CNQ loss.
func tradeSnapshot() snapshot.Snapshot {
	return snapshot.Snapshot{
		TotalValueCAD: 10000,
		Accounts: []snapshot.Account{
			{
				ID: 2, AccountType: "non_registered", BalanceCAD: 1000, IsActive: true,
				Positions: []snapshot.Position{
					{Ticker: "SHOP.TO", Shares: 10, AvgCostCAD: 100, CurrentPrice: 150,
						CurrentValueCAD: 1500, UnrealizedGainLossCAD: 500},
					{Ticker: "CNQ.TO", Shares: 50, AvgCostCAD: 50, CurrentPrice: 44,
						CurrentValueCAD: 2200, UnrealizedGainLossCAD: -300},
				},
			},
			{
				ID: 1, AccountType: "rrsp", BalanceCAD: 2500, IsActive: true,
			},
		},
	}
}

func TestSelectAgents_SellGainWithLosses(t *testing.T) {
	snap := tradeSnapshot()
	got := selectAgents(snap, Request{AccountID: 2, Ticker: "shop.to", Shares: 5, Action: snapshot.TradeSell})
	assert.Equal(t, []agents.Agent{agents.TaxImplications, agents.TLH}, got)
}

func TestSelectAgents_SellLossSkipsTLH(t *testing.T) {
	snap := tradeSnapshot()
	got := selectAgents(snap, Request{AccountID: 2, Ticker: "CNQ.TO", Shares: 5, Action: snapshot.TradeSell})
	assert.Equal(t, []agents.Agent{agents.TaxImplications}, got)
}

func TestSelectAgents_RegisteredBuy(t *testing.T) {
	snap := tradeSnapshot()
	got := selectAgents(snap, Request{AccountID: 1, Ticker: "XEQT.TO", Shares: 5, Action: snapshot.TradeBuy})
	assert.Equal(t, []agents.Agent{agents.TaxImplications, agents.Allocation, agents.RateArbitrage}, got)
}

func TestCheck_InterceptsMaterialFinding(t *testing.T) {
	client := &analystClient{replies: map[string]string{
		"tax-implications analyst": findingsReply("Selling SHOP triggers capital gains tax", 148, "this_month", "Wait or offset"),
		"tax-loss-harvesting analyst": findingsReply("Harvest the CNQ.TO loss first", 89, "immediate",
			"Sell CNQ.TO to harvest the $300 loss and offset the SHOP gain"),
	}}
	c := NewChecker(agents.NewInvoker(client), 0, 0)

	v := c.Check(context.Background(), tradeSnapshot(), nil,
		Request{AccountID: 2, Ticker: "SHOP.TO", Shares: 5, Action: snapshot.TradeSell})

	require.True(t, v.ShouldIntercept)
	assert.Equal(t, "warning", v.Urgency)
	assert.Contains(t, v.Headline, "capital gains tax")
	assert.Contains(t, v.Headline, "$148")
	assert.Contains(t, v.BetterAlternative, "harvest")
	assert.Equal(t, "Sell SHOP.TO anyway", v.ProceedAnywayLabel)
	require.Len(t, v.Findings, 2)
	assert.Equal(t, "Selling SHOP triggers capital gains tax", v.Findings[0].Title)

	assert.True(t, client.sawAnalyst("tax-implications analyst"))
	assert.True(t, client.sawAnalyst("tax-loss-harvesting analyst"))
	assert.False(t, client.sawAnalyst("allocation analyst"))
}

func TestCheck_ImmaterialFindingsPass(t *testing.T) {
	client := &analystClient{replies: map[string]string{
		"tax-implications analyst": findingsReply("Tiny tax effect", 12, "evergreen", "nothing"),
	}}
	c := NewChecker(agents.NewInvoker(client), 0, 0)

	v := c.Check(context.Background(), tradeSnapshot(), nil,
		Request{AccountID: 2, Ticker: "CNQ.TO", Shares: 1, Action: snapshot.TradeSell})
	assert.False(t, v.ShouldIntercept)
	assert.Empty(t, v.Findings)
}

func TestCheck_DeadlineFailsOpen(t *testing.T) {
	client := &analystClient{
		delay: 5 * time.Second,
		replies: map[string]string{
			"tax-implications analyst": findingsReply("Would matter", 500, "immediate", "w"),
		},
	}
	c := NewChecker(agents.NewInvoker(client), 100*time.Millisecond, 0)

	start := time.Now()
	v := c.Check(context.Background(), tradeSnapshot(), nil,
		Request{AccountID: 2, Ticker: "SHOP.TO", Shares: 5, Action: snapshot.TradeSell})
	assert.False(t, v.ShouldIntercept)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestCheck_EvergreenIsInfo(t *testing.T) {
	client := &analystClient{replies: map[string]string{
		"tax-implications analyst": findingsReply("Standing tax consideration", 200, "evergreen", "w"),
	}}
	c := NewChecker(agents.NewInvoker(client), 0, 0)

	v := c.Check(context.Background(), tradeSnapshot(), nil,
		Request{AccountID: 2, Ticker: "CNQ.TO", Shares: 5, Action: snapshot.TradeSell})
	require.True(t, v.ShouldIntercept)
	assert.Equal(t, "info", v.Urgency)
}
