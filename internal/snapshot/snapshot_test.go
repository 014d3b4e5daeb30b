package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func room(v float64) *float64 { return &v }

func demoSnapshot() Snapshot {
	return Snapshot{
		TotalValueCAD: 52000,
		Accounts: []Account{
			{
				ID:                        1,
				AccountType:               "rrsp",
				ProductName:               "Self-Directed RRSP",
				BalanceCAD:                2000,
				TotalValueCAD:             22000,
				ContributionRoomRemaining: room(14500),
				ContributionDeadline:      "2025-03-03",
				IsActive:                  true,
				Positions: []Position{
					{Ticker: "XEQT.TO", Name: "XEQT", Shares: 500, AvgCostCAD: 30, CurrentPrice: 40,
						CurrentValueCAD: 20000, UnrealizedGainLossCAD: 5000, AssetType: "etf"},
				},
			},
			{
				ID:          2,
				AccountType: "non_registered",
				ProductName: "Self-Directed Non-Registered",
				BalanceCAD:  1000,
				IsActive:    true,
				Positions: []Position{
					{Ticker: "SHOP.TO", Name: "Shopify", Shares: 20, AvgCostCAD: 100, CurrentPrice: 150,
						CurrentValueCAD: 3000, UnrealizedGainLossCAD: 1000, AssetType: "stock"},
					{Ticker: "CNQ.TO", Name: "CNQ", Shares: 50, AvgCostCAD: 110, CurrentPrice: 90,
						CurrentValueCAD: 4500, UnrealizedGainLossCAD: -1000, AssetType: "stock"},
				},
			},
			{
				ID:          3,
				AccountType: "margin",
				ProductName: "Margin",
				BalanceCAD:  -8000,
				IsActive:    true,
			},
		},
		ContributionRoom: ContributionRoom{RRSP: room(14500), TFSA: room(6500)},
		Margin:           &Margin{DebitBalance: 8000, InterestRate: 0.062, AnnualCost: 496},
	}
}

func TestClone_IsolatesMutations(t *testing.T) {
	src := demoSnapshot()
	cl := src.Clone()

	cl.Accounts[0].BalanceCAD = 0
	cl.Accounts[0].Positions[0].Shares = 1
	*cl.Accounts[0].ContributionRoomRemaining = 0
	cl.Margin.DebitBalance = 0
	*cl.ContributionRoom.RRSP = 0

	assert.Equal(t, 2000.0, src.Accounts[0].BalanceCAD)
	assert.Equal(t, 500.0, src.Accounts[0].Positions[0].Shares)
	assert.Equal(t, 14500.0, *src.Accounts[0].ContributionRoomRemaining)
	assert.Equal(t, 8000.0, src.Margin.DebitBalance)
	assert.Equal(t, 14500.0, *src.ContributionRoom.RRSP)
}

func TestApply_RRSPContribution(t *testing.T) {
	src := demoSnapshot()
	out := src.Apply(ScenarioRRSPContribution, 5000)

	rrsp := out.AccountByType("rrsp")
	require.NotNil(t, rrsp)
	assert.Equal(t, 7000.0, rrsp.BalanceCAD)
	assert.Equal(t, 27000.0, rrsp.TotalValueCAD)
	assert.Equal(t, 9500.0, *rrsp.ContributionRoomRemaining)
	assert.Equal(t, 9500.0, *out.ContributionRoom.RRSP)

	// Source untouched.
	assert.Equal(t, 2000.0, src.AccountByType("rrsp").BalanceCAD)
	assert.Equal(t, 14500.0, *src.ContributionRoom.RRSP)
}

func TestApply_ContributionRoomClampsAtZero(t *testing.T) {
	out := demoSnapshot().Apply(ScenarioRRSPContribution, 99999)
	assert.Equal(t, 0.0, *out.ContributionRoom.RRSP)
	assert.Equal(t, 0.0, *out.AccountByType("rrsp").ContributionRoomRemaining)
}

func TestApply_PayMargin(t *testing.T) {
	out := demoSnapshot().Apply(ScenarioPayMargin, 3000)

	require.NotNil(t, out.Margin)
	assert.Equal(t, 5000.0, out.Margin.DebitBalance)
	assert.Equal(t, 310.0, out.Margin.AnnualCost)
	assert.Equal(t, -5000.0, out.AccountByType("margin").BalanceCAD)
}

func TestSimulateTrade_SellReducesPositionAndCreditsCash(t *testing.T) {
	src := demoSnapshot()
	out := src.SimulateTrade(2, "shop.to", 10, TradeSell)

	acct := out.AccountByID(2)
	require.NotNil(t, acct)
	var shop *Position
	for i := range acct.Positions {
		if acct.Positions[i].Ticker == "SHOP.TO" {
			shop = &acct.Positions[i]
		}
	}
	require.NotNil(t, shop)
	assert.Equal(t, 10.0, shop.Shares)
	assert.Equal(t, 1500.0, shop.CurrentValueCAD)
	assert.Equal(t, 500.0, shop.UnrealizedGainLossCAD)
	assert.Equal(t, 2500.0, acct.BalanceCAD) // 1000 + 10*150

	// Full sale removes the position.
	gone := src.SimulateTrade(2, "SHOP.TO", 20, TradeSell)
	for _, pos := range gone.AccountByID(2).Positions {
		assert.NotEqual(t, "SHOP.TO", pos.Ticker)
	}
}

func TestSimulateTrade_BuyAveragesCost(t *testing.T) {
	out := demoSnapshot().SimulateTrade(2, "SHOP.TO", 20, TradeBuy)

	acct := out.AccountByID(2)
	var shop *Position
	for i := range acct.Positions {
		if acct.Positions[i].Ticker == "SHOP.TO" {
			shop = &acct.Positions[i]
		}
	}
	require.NotNil(t, shop)
	assert.Equal(t, 40.0, shop.Shares)
	assert.Equal(t, 125.0, shop.AvgCostCAD) // (20*100 + 20*150) / 40
	assert.Equal(t, -2000.0, acct.BalanceCAD)
}

func TestSimulateTrade_UnknownTickerLeavesSnapshotUnchanged(t *testing.T) {
	src := demoSnapshot()
	out := src.SimulateTrade(2, "ZZZ.TO", 5, TradeBuy)
	assert.Equal(t, len(src.AccountByID(2).Positions), len(out.AccountByID(2).Positions))
	assert.Equal(t, src.AccountByID(2).BalanceCAD, out.AccountByID(2).BalanceCAD)
}

func TestComputeTaxExposure_OnlyNonRegisteredGains(t *testing.T) {
	exposure := demoSnapshot().ComputeTaxExposure(0)

	assert.Equal(t, DefaultMarginalRate, exposure.MarginalRate)
	require.Len(t, exposure.Positions, 1) // SHOP gain only; CNQ loss and RRSP gain excluded
	assert.Equal(t, "SHOP.TO", exposure.Positions[0].Ticker)
	assert.Equal(t, 500.0, exposure.Positions[0].TaxableGainCAD)
	assert.Equal(t, 148.25, exposure.Positions[0].EstimatedTaxCAD)
}
