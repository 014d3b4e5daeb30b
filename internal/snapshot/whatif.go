package snapshot

// Scenario identifies a supported what-if transformation.
type Scenario string

const (
	ScenarioRRSPContribution Scenario = "rrsp_contribution"
	ScenarioTFSAContribution Scenario = "tfsa_contribution"
	ScenarioPayMargin        Scenario = "pay_margin"
	ScenarioSellPosition     Scenario = "sell_position"
)

// KnownScenario reports whether the scenario name is supported.
func KnownScenario(s Scenario) bool {
	switch s {
	case ScenarioRRSPContribution, ScenarioTFSAContribution, ScenarioPayMargin, ScenarioSellPosition:
		return true
	}
	return false
}

// Apply returns a new snapshot with the hypothetical scenario applied.
// The receiver is never mutated.
func (s Snapshot) Apply(scenario Scenario, amount float64) Snapshot {
	out := s.Clone()

	switch scenario {
	case ScenarioRRSPContribution:
		out.contribute("rrsp", amount)
		if out.ContributionRoom.RRSP != nil {
			reduced := max0(*out.ContributionRoom.RRSP - amount)
			out.ContributionRoom.RRSP = &reduced
		}

	case ScenarioTFSAContribution:
		out.contribute("tfsa", amount)
		if out.ContributionRoom.TFSA != nil {
			reduced := max0(*out.ContributionRoom.TFSA - amount)
			out.ContributionRoom.TFSA = &reduced
		}

	case ScenarioPayMargin:
		for i := range out.Accounts {
			if out.Accounts[i].AccountType != "margin" {
				continue
			}
			debit := max0(abs(out.Accounts[i].BalanceCAD) - amount)
			out.Accounts[i].BalanceCAD = -debit
		}
		if out.Margin != nil {
			debit := max0(out.Margin.DebitBalance - amount)
			rate := out.Margin.InterestRate
			if rate == 0 {
				rate = 0.062
			}
			out.Margin = &Margin{
				DebitBalance: debit,
				InterestRate: rate,
				AnnualCost:   round2(debit * rate),
			}
		}
	}

	return out
}

func (s *Snapshot) contribute(accountType string, amount float64) {
	for i := range s.Accounts {
		acct := &s.Accounts[i]
		if acct.AccountType != accountType {
			continue
		}
		if acct.ContributionRoomRemaining != nil {
			room := max0(*acct.ContributionRoomRemaining - amount)
			acct.ContributionRoomRemaining = &room
		}
		acct.BalanceCAD += amount
		acct.TotalValueCAD += amount
	}
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
