package snapshot

import "strings"

// TradeAction is the direction of a simulated trade.
type TradeAction string

const (
	TradeBuy  TradeAction = "buy"
	TradeSell TradeAction = "sell"
)

// SimulateTrade returns a new snapshot reflecting the hypothetical trade.
// Pricing uses the existing position's current price; if the account holds
// no position in the ticker the snapshot is returned unchanged; no live
// quote is fetched here, the caller decides whether to price externally.
func (s Snapshot) SimulateTrade(accountID int64, ticker string, shares float64, action TradeAction) Snapshot {
	out := s.Clone()
	upper := strings.ToUpper(ticker)

	for i := range out.Accounts {
		acct := &out.Accounts[i]
		if acct.ID != accountID {
			continue
		}

		var price float64
		for _, pos := range acct.Positions {
			if strings.ToUpper(pos.Ticker) == upper {
				price = pos.CurrentPrice
				break
			}
		}
		if price == 0 {
			break
		}
		tradeValue := round2(shares * price)

		switch action {
		case TradeSell:
			kept := acct.Positions[:0]
			for _, pos := range acct.Positions {
				if strings.ToUpper(pos.Ticker) != upper {
					kept = append(kept, pos)
					continue
				}
				remaining := pos.Shares - shares
				if remaining <= 0.0001 {
					continue // fully sold
				}
				pos.Shares = remaining
				pos.CurrentValueCAD = round2(remaining * pos.CurrentPrice)
				pos.UnrealizedGainLossCAD = round2(remaining * (pos.CurrentPrice - pos.AvgCostCAD))
				kept = append(kept, pos)
			}
			acct.Positions = kept
			acct.BalanceCAD = round2(acct.BalanceCAD + tradeValue)

		case TradeBuy:
			found := false
			for j := range acct.Positions {
				pos := &acct.Positions[j]
				if strings.ToUpper(pos.Ticker) != upper {
					continue
				}
				newShares := pos.Shares + shares
				newAvg := (pos.Shares*pos.AvgCostCAD + tradeValue) / newShares
				pos.Shares = newShares
				pos.AvgCostCAD = round4(newAvg)
				pos.CurrentValueCAD = round2(newShares * pos.CurrentPrice)
				pos.UnrealizedGainLossCAD = round2(newShares * (pos.CurrentPrice - newAvg))
				found = true
				break
			}
			if !found {
				acct.Positions = append(acct.Positions, Position{
					Ticker:          upper,
					Name:            upper,
					Shares:          shares,
					AvgCostCAD:      price,
					AssetType:       "stock",
					CurrentPrice:    price,
					CurrentValueCAD: tradeValue,
				})
			}
			acct.BalanceCAD = round2(acct.BalanceCAD - tradeValue)
		}
		break
	}

	return out
}
