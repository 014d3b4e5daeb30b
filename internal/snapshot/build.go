package snapshot

import (
	"time"

	"finsight/internal/prices"
	"finsight/internal/store"
)

const defaultMarginRate = 0.062

// Build assembles a snapshot from stored accounts and positions plus live
// quotes. A ticker with no usable quote is valued at cost basis, so a price
// outage never zeroes the portfolio.
func Build(accounts []store.Account, positions []store.Position, quotes map[string]prices.Quote, now time.Time) Snapshot {
	byAccount := make(map[int64][]store.Position)
	for _, p := range positions {
		byAccount[p.AccountID] = append(byAccount[p.AccountID], p)
	}

	var snap Snapshot
	snap.Allocation.ByAccountType = make(map[string]float64)
	snap.Allocation.ByAssetType = make(map[string]float64)

	var totalCost float64

	for _, acct := range accounts {
		cash := acct.BalanceCAD
		if cash < 0 {
			cash = 0 // margin debit is not asset value
		}
		equity := 0.0

		var posList []Position
		for _, p := range byAccount[acct.ID] {
			price := p.AvgCostCAD
			changePct := 0.0
			if q, ok := quotes[p.Ticker]; ok && q.CADPrice > 0 {
				price = q.CADPrice
				changePct = q.ChangePct
			}

			value := p.Shares * price
			cost := p.Shares * p.AvgCostCAD
			gl := value - cost
			glPct := 0.0
			if cost != 0 {
				glPct = gl / cost * 100
			}

			equity += value
			totalCost += cost
			snap.Allocation.ByAssetType[p.AssetType] += value

			name := p.Name
			if name == "" {
				name = p.Ticker
			}
			posList = append(posList, Position{
				ID:                    p.ID,
				Ticker:                p.Ticker,
				Name:                  name,
				Shares:                p.Shares,
				AvgCostCAD:            p.AvgCostCAD,
				Currency:              p.Currency,
				AssetType:             p.AssetType,
				CurrentPrice:          price,
				CurrentValueCAD:       round2(value),
				UnrealizedGainLossCAD: round2(gl),
				UnrealizedGainLossPct: round2(glPct),
				HeldDays:              int(now.Sub(p.CreatedAt).Hours() / 24),
				ChangePct:             changePct,
			})
		}

		acctTotal := cash + equity
		if acct.IsActive {
			snap.TotalValueCAD += acctTotal
			snap.Allocation.ByAccountType[acct.AccountType] += acctTotal
		}

		rate := 0.0
		if acct.InterestRate != nil {
			rate = *acct.InterestRate
		}
		snap.Accounts = append(snap.Accounts, Account{
			ID:                        acct.ID,
			AccountType:               acct.AccountType,
			Subtype:                   acct.Subtype,
			ProductName:               acct.ProductName,
			BalanceCAD:                acct.BalanceCAD,
			TotalValueCAD:             round2(acctTotal),
			InterestRate:              rate,
			ContributionRoomRemaining: cloneFloatPtr(acct.ContributionRoomRemaining),
			ContributionDeadline:      acct.ContributionDeadline,
			IsActive:                  acct.IsActive,
			Positions:                 posList,
		})
	}

	// Gain/loss compares equity to cost basis; cash balances stay out of it.
	var totalEquity float64
	for _, a := range snap.Accounts {
		for _, p := range a.Positions {
			totalEquity += p.CurrentValueCAD
		}
	}
	snap.TotalGainLossCAD = round2(totalEquity - totalCost)
	if totalCost != 0 {
		snap.TotalGainLossPct = round2(snap.TotalGainLossCAD / totalCost * 100)
	}

	for k, v := range snap.Allocation.ByAccountType {
		snap.Allocation.ByAccountType[k] = round2(v)
	}
	for k, v := range snap.Allocation.ByAssetType {
		snap.Allocation.ByAssetType[k] = round2(v)
	}
	snap.TotalValueCAD = round2(snap.TotalValueCAD)

	if tfsa := snap.AccountByType("tfsa"); tfsa != nil {
		snap.ContributionRoom.TFSA = cloneFloatPtr(tfsa.ContributionRoomRemaining)
	}
	if rrsp := snap.AccountByType("rrsp"); rrsp != nil {
		snap.ContributionRoom.RRSP = cloneFloatPtr(rrsp.ContributionRoomRemaining)
	}
	if fhsa := snap.AccountByType("fhsa"); fhsa != nil {
		snap.ContributionRoom.FHSA = cloneFloatPtr(fhsa.ContributionRoomRemaining)
	}

	if margin := snap.AccountByType("margin"); margin != nil {
		debit := margin.BalanceCAD
		if debit < 0 {
			debit = -debit
		}
		rate := margin.InterestRate
		if rate == 0 {
			rate = defaultMarginRate
		}
		snap.Margin = &Margin{
			DebitBalance: debit,
			InterestRate: margin.InterestRate,
			AnnualCost:   round2(debit * rate),
		}
	}

	return snap
}
