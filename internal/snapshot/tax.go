package snapshot

// Ontario combined marginal rate for the demo profile.
const DefaultMarginalRate = 0.2965

// capital gains inclusion rate
const inclusionRate = 0.50

// TaxedPosition is one non-registered position with an unrealized gain.
type TaxedPosition struct {
	Ticker             string  `json:"ticker"`
	Shares             float64 `json:"shares"`
	AvgCostCAD         float64 `json:"avg_cost_cad"`
	CurrentPriceCAD    float64 `json:"current_price_cad"`
	UnrealizedGainCAD  float64 `json:"unrealized_gain_cad"`
	TaxableGainCAD     float64 `json:"taxable_gain_cad"`
	EstimatedTaxCAD    float64 `json:"estimated_tax_cad"`
}

// TaxExposure summarizes tax owing on unrealized non-registered gains.
type TaxExposure struct {
	MarginalRate          float64         `json:"marginal_rate"`
	InclusionRate         float64         `json:"inclusion_rate"`
	Positions             []TaxedPosition `json:"positions"`
	TotalTaxableGainCAD   float64         `json:"total_taxable_gain_cad"`
	TotalEstimatedTaxCAD  float64         `json:"total_estimated_tax_cad"`
}

// ComputeTaxExposure estimates tax on unrealized gains in non-registered
// accounts at the given marginal rate. Losses are excluded; only gains are
// taxed.
func (s Snapshot) ComputeTaxExposure(marginalRate float64) TaxExposure {
	if marginalRate <= 0 {
		marginalRate = DefaultMarginalRate
	}

	exposure := TaxExposure{
		MarginalRate:  marginalRate,
		InclusionRate: inclusionRate,
		Positions:     []TaxedPosition{},
	}

	for _, acct := range s.Accounts {
		if acct.AccountType != "non_registered" {
			continue
		}
		for _, pos := range acct.Positions {
			if pos.UnrealizedGainLossCAD <= 0 {
				continue
			}
			taxable := pos.UnrealizedGainLossCAD * inclusionRate
			tax := taxable * marginalRate
			exposure.TotalTaxableGainCAD += taxable
			exposure.TotalEstimatedTaxCAD += tax
			exposure.Positions = append(exposure.Positions, TaxedPosition{
				Ticker:            pos.Ticker,
				Shares:            pos.Shares,
				AvgCostCAD:        pos.AvgCostCAD,
				CurrentPriceCAD:   round2(pos.CurrentPrice),
				UnrealizedGainCAD: round2(pos.UnrealizedGainLossCAD),
				TaxableGainCAD:    round2(taxable),
				EstimatedTaxCAD:   round2(tax),
			})
		}
	}

	exposure.TotalTaxableGainCAD = round2(exposure.TotalTaxableGainCAD)
	exposure.TotalEstimatedTaxCAD = round2(exposure.TotalEstimatedTaxCAD)
	return exposure
}
