// Package snapshot models the point-in-time financial state handed to
// analysis agents. A Snapshot is a value: every transformation (what-if
// scenario, simulated trade) returns a new copy, so concurrent agent calls
// never observe another call's mutations.
package snapshot

import "math"

// Position is one holding inside an account, priced in CAD.
type Position struct {
	ID                    int64   `json:"id,omitempty"`
	Ticker                string  `json:"ticker"`
	Name                  string  `json:"name"`
	Shares                float64 `json:"shares"`
	AvgCostCAD            float64 `json:"avg_cost_cad"`
	Currency              string  `json:"currency,omitempty"`
	AssetType             string  `json:"asset_type"`
	CurrentPrice          float64 `json:"current_price"`
	CurrentValueCAD       float64 `json:"current_value_cad"`
	UnrealizedGainLossCAD float64 `json:"unrealized_gain_loss_cad"`
	UnrealizedGainLossPct float64 `json:"unrealized_gain_loss_pct"`
	HeldDays              int     `json:"held_days"`
	ChangePct             float64 `json:"change_pct"`
}

// Account is one account with its cash balance and positions.
type Account struct {
	ID                        int64      `json:"id"`
	AccountType               string     `json:"account_type"` // tfsa|rrsp|fhsa|non_registered|chequing|margin|crypto
	Subtype                   string     `json:"subtype,omitempty"`
	ProductName               string     `json:"product_name"`
	BalanceCAD                float64    `json:"balance_cad"`
	TotalValueCAD             float64    `json:"total_value_cad"`
	InterestRate              float64    `json:"interest_rate,omitempty"`
	ContributionRoomRemaining *float64   `json:"contribution_room_remaining"`
	ContributionDeadline      string     `json:"contribution_deadline,omitempty"`
	IsActive                  bool       `json:"is_active"`
	Positions                 []Position `json:"positions"`
}

// Allocation breaks the portfolio down by account and asset type.
type Allocation struct {
	ByAccountType map[string]float64 `json:"by_account_type"`
	ByAssetType   map[string]float64 `json:"by_asset_type"`
}

// ContributionRoom summarizes remaining registered-account room.
type ContributionRoom struct {
	TFSA *float64 `json:"tfsa"`
	RRSP *float64 `json:"rrsp"`
	FHSA *float64 `json:"fhsa"`
}

// Margin summarizes margin debt and its carrying cost.
type Margin struct {
	DebitBalance float64 `json:"debit_balance"`
	InterestRate float64 `json:"interest_rate"`
	AnnualCost   float64 `json:"annual_cost"`
}

// Snapshot is the complete portfolio state passed to agents.
type Snapshot struct {
	TotalValueCAD    float64          `json:"total_value_cad"`
	TotalGainLossCAD float64          `json:"total_gain_loss_cad"`
	TotalGainLossPct float64          `json:"total_gain_loss_pct"`
	Accounts         []Account        `json:"accounts"`
	Allocation       Allocation       `json:"allocation"`
	ContributionRoom ContributionRoom `json:"contribution_room"`
	Margin           *Margin          `json:"margin,omitempty"`
}

// Clone returns a deep copy. Callers hand each concurrent agent invocation
// its own clone.
func (s Snapshot) Clone() Snapshot {
	out := s

	out.Accounts = make([]Account, len(s.Accounts))
	for i, acct := range s.Accounts {
		a := acct
		a.Positions = make([]Position, len(acct.Positions))
		copy(a.Positions, acct.Positions)
		if acct.ContributionRoomRemaining != nil {
			room := *acct.ContributionRoomRemaining
			a.ContributionRoomRemaining = &room
		}
		out.Accounts[i] = a
	}

	out.Allocation.ByAccountType = cloneFloatMap(s.Allocation.ByAccountType)
	out.Allocation.ByAssetType = cloneFloatMap(s.Allocation.ByAssetType)

	out.ContributionRoom.TFSA = cloneFloatPtr(s.ContributionRoom.TFSA)
	out.ContributionRoom.RRSP = cloneFloatPtr(s.ContributionRoom.RRSP)
	out.ContributionRoom.FHSA = cloneFloatPtr(s.ContributionRoom.FHSA)

	if s.Margin != nil {
		m := *s.Margin
		out.Margin = &m
	}
	return out
}

// AccountByID returns the account with the given id, or nil.
func (s *Snapshot) AccountByID(id int64) *Account {
	for i := range s.Accounts {
		if s.Accounts[i].ID == id {
			return &s.Accounts[i]
		}
	}
	return nil
}

// AccountByType returns the first account of the given type, or nil.
func (s *Snapshot) AccountByType(accountType string) *Account {
	for i := range s.Accounts {
		if s.Accounts[i].AccountType == accountType {
			return &s.Accounts[i]
		}
	}
	return nil
}

func cloneFloatMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneFloatPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
