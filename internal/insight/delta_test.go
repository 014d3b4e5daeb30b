package insight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelta_ImprovedFinding(t *testing.T) {
	baseline := []Finding{validFinding("X", 100)}
	modified := []Finding{validFinding("X", 150)}

	rows := Delta(baseline, modified)
	require.Len(t, rows, 1)
	assert.Equal(t, "X", rows[0].Title)
	assert.Equal(t, 50.0, rows[0].DeltaDollarImpact)
	assert.Equal(t, DeltaImproved, rows[0].Direction)
	assert.Equal(t, 50.0, rows[0].DeltaPct)
	assert.Equal(t, "both", rows[0].PresentIn)
}

func TestDelta_PresenceAndOrdering(t *testing.T) {
	baseline := []Finding{
		validFinding("gone", 400),
		validFinding("steady", 100),
	}
	modified := []Finding{
		validFinding("steady", 100),
		validFinding("new", 75),
	}

	rows := Delta(baseline, modified)
	require.Len(t, rows, 3)

	// Sorted by |delta| descending: gone (-400), new (+75), steady (0).
	assert.Equal(t, "gone", rows[0].Title)
	assert.Equal(t, "baseline_only", rows[0].PresentIn)
	assert.Equal(t, DeltaWorsened, rows[0].Direction)

	assert.Equal(t, "new", rows[1].Title)
	assert.Equal(t, "modified_only", rows[1].PresentIn)
	assert.Equal(t, DeltaImproved, rows[1].Direction)

	assert.Equal(t, "steady", rows[2].Title)
	assert.Equal(t, DeltaUnchanged, rows[2].Direction)
}

func TestDelta_ZeroBaselineHasZeroPct(t *testing.T) {
	rows := Delta(nil, []Finding{validFinding("fresh", 250)})
	require.Len(t, rows, 1)
	assert.Equal(t, 0.0, rows[0].DeltaPct)
	assert.Equal(t, 250.0, rows[0].DeltaDollarImpact)
}
