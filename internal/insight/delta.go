package insight

import (
	"math"
	"sort"
)

// DeltaDirection classifies how a finding's impact moved between scenarios.
type DeltaDirection string

const (
	DeltaImproved  DeltaDirection = "improved"
	DeltaWorsened  DeltaDirection = "worsened"
	DeltaUnchanged DeltaDirection = "unchanged"
)

// DeltaRow is one side-by-side comparison entry, keyed by title.
type DeltaRow struct {
	Title                string         `json:"title"`
	BaselineDollarImpact float64        `json:"baseline_dollar_impact"`
	ModifiedDollarImpact float64        `json:"modified_dollar_impact"`
	DeltaDollarImpact    float64        `json:"delta_dollar_impact"`
	DeltaPct             float64        `json:"delta_pct"`
	Direction            DeltaDirection `json:"direction"`
	PresentIn            string         `json:"present_in"` // both|baseline_only|modified_only
}

// Delta compares baseline findings against a modified scenario's findings by
// title and returns rows sorted by absolute impact change descending.
func Delta(baseline, modified []Finding) []DeltaRow {
	base := make(map[string]Finding, len(baseline))
	for _, f := range baseline {
		if _, ok := base[f.Title]; !ok {
			base[f.Title] = f
		}
	}
	mod := make(map[string]Finding, len(modified))
	for _, f := range modified {
		if _, ok := mod[f.Title]; !ok {
			mod[f.Title] = f
		}
	}

	titles := make([]string, 0, len(base)+len(mod))
	for t := range base {
		titles = append(titles, t)
	}
	for t := range mod {
		if _, ok := base[t]; !ok {
			titles = append(titles, t)
		}
	}
	sort.Strings(titles)

	rows := make([]DeltaRow, 0, len(titles))
	for _, title := range titles {
		b, inBase := base[title]
		m, inMod := mod[title]

		diff := m.DollarImpact - b.DollarImpact
		pct := 0.0
		if b.DollarImpact != 0 {
			pct = round1(diff / b.DollarImpact * 100)
		}

		direction := DeltaUnchanged
		switch {
		case math.Abs(diff) < 0.01:
			direction = DeltaUnchanged
		case diff > 0:
			direction = DeltaImproved
		default:
			direction = DeltaWorsened
		}

		presentIn := "both"
		if !inBase {
			presentIn = "modified_only"
		} else if !inMod {
			presentIn = "baseline_only"
		}

		rows = append(rows, DeltaRow{
			Title:                title,
			BaselineDollarImpact: round2(b.DollarImpact),
			ModifiedDollarImpact: round2(m.DollarImpact),
			DeltaDollarImpact:    round2(diff),
			DeltaPct:             pct,
			Direction:            direction,
			PresentIn:            presentIn,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return math.Abs(rows[i].DeltaDollarImpact) > math.Abs(rows[j].DeltaDollarImpact)
	})
	return rows
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
