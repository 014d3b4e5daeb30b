package insight

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFinding(title string, impact float64) Finding {
	return Finding{
		Title:           title,
		DollarImpact:    impact,
		ImpactDirection: DirectionSave,
		Urgency:         UrgencyEvergreen,
		Reasoning:       "because",
		Confidence:      ConfidenceHigh,
		WhatToDo:        "do it",
	}
}

func TestMerge_RanksByDollarImpactDescending(t *testing.T) {
	merged := Merge(CapabilityResult{
		Domain: "allocation",
		Findings: []Finding{
			validFinding("small", 100),
			validFinding("big", 5000),
			validFinding("medium", 1200),
		},
	})

	require.Len(t, merged, 3)
	assert.Equal(t, "big", merged[0].Title)
	assert.Equal(t, "medium", merged[1].Title)
	assert.Equal(t, "small", merged[2].Title)
}

func TestMerge_StableOnTies(t *testing.T) {
	// Equal impacts keep their merge order: first the allocation finding,
	// then the tax one, because allocation was merged first.
	merged := Merge(
		CapabilityResult{Domain: "allocation", Findings: []Finding{validFinding("first in", 300)}},
		CapabilityResult{Domain: "tax", Findings: []Finding{validFinding("second in", 300)}},
	)

	require.Len(t, merged, 2)
	assert.Equal(t, "first in", merged[0].Title)
	assert.Equal(t, "second in", merged[1].Title)
}

func TestMerge_Idempotent(t *testing.T) {
	input := []CapabilityResult{
		{Domain: "tlh", Findings: []Finding{validFinding("a", 50), validFinding("b", 50), validFinding("c", 900)}},
		{Domain: "rates", Findings: []Finding{validFinding("d", 900)}},
	}

	first := Merge(input...)
	second := Merge(input...)
	if diff := cmp.Diff(first, second, cmpopts.IgnoreUnexported(Finding{})); diff != "" {
		t.Errorf("merge not idempotent (-first +second):\n%s", diff)
	}

	// Merging the merged output again yields the same ranking.
	again := Merge(CapabilityResult{Domain: "merged", Findings: first})
	require.Len(t, again, len(first))
	for i := range first {
		assert.Equal(t, first[i].Title, again[i].Title)
	}
}

func TestMerge_DedupIsCaseAndWhitespaceInsensitive(t *testing.T) {
	merged := Merge(
		CapabilityResult{Domain: "allocation", Findings: []Finding{validFinding("Contribute to TFSA", 4100)}},
		CapabilityResult{Domain: "timing", Findings: []Finding{validFinding(" contribute to tfsa ", 9999)}},
	)

	require.Len(t, merged, 1)
	// First occurrence wins even though the duplicate had a larger impact.
	assert.Equal(t, "Contribute to TFSA", merged[0].Title)
	assert.Equal(t, 4100.0, merged[0].DollarImpact)
	assert.Equal(t, "allocation", merged[0].Domain)
}

func TestMerge_DropsInvalidFindingsWithoutFailing(t *testing.T) {
	missingConfidence := validFinding("no confidence", 800)
	missingConfidence.Confidence = ""

	badDirection := validFinding("bad direction", 700)
	badDirection.ImpactDirection = "sideways"

	merged := Merge(CapabilityResult{
		Domain:   "tax",
		Findings: []Finding{missingConfidence, badDirection, validFinding("keeper", 10)},
	})

	require.Len(t, merged, 1)
	assert.Equal(t, "keeper", merged[0].Title)
}

func TestFinding_UnmarshalMissingImpactIsInvalid(t *testing.T) {
	payload := `{"title":"t","impact_direction":"save","urgency":"evergreen",
		"reasoning":"r","confidence":"high","what_to_do":"w"}`

	var f Finding
	require.NoError(t, json.Unmarshal([]byte(payload), &f))
	assert.False(t, f.Valid())

	// Same payload with a numeric impact is valid.
	payload = `{"title":"t","dollar_impact":12.5,"impact_direction":"save",
		"urgency":"evergreen","reasoning":"r","confidence":"high","what_to_do":"w"}`
	var g Finding
	require.NoError(t, json.Unmarshal([]byte(payload), &g))
	assert.True(t, g.Valid())
	assert.Equal(t, 12.5, g.DollarImpact)
}

func TestFinding_UnmarshalNonNumericImpactIsInvalid(t *testing.T) {
	payload := `{"title":"t","dollar_impact":"lots","impact_direction":"save",
		"urgency":"evergreen","reasoning":"r","confidence":"high","what_to_do":"w"}`

	var f Finding
	require.NoError(t, json.Unmarshal([]byte(payload), &f))
	assert.False(t, f.Valid())
}

func TestByDomain_GroupsMergedFindings(t *testing.T) {
	merged := Merge(
		CapabilityResult{Domain: "tax", Findings: []Finding{validFinding("a", 1)}},
		CapabilityResult{Domain: "tlh", Findings: []Finding{validFinding("b", 2)}},
	)
	grouped := ByDomain(merged)
	require.Len(t, grouped, 2)
	assert.Equal(t, "a", grouped["tax"][0].Title)
	assert.Equal(t, "b", grouped["tlh"][0].Title)
}
