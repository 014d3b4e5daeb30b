package insight

import (
	"sort"

	"finsight/internal/logging"

	"go.uber.org/zap"
)

// CapabilityResult is the output of one capability invocation: the findings
// a single agent produced for its domain. Results are merged in slice order,
// which makes the dedup rule ("first occurrence wins") deterministic.
type CapabilityResult struct {
	Domain   string
	Findings []Finding
}

// Merge flattens capability results into one ranked finding list:
// invalid findings are dropped (logged, never fatal), duplicates by
// normalized title are discarded keeping the first in merge order, and the
// remainder is stable-sorted by dollar impact descending. Stability is the
// only tie-break rule, so equal impacts keep their merge order.
func Merge(results ...CapabilityResult) []Finding {
	log := logging.Get(logging.CategoryInsight)

	seen := make(map[string]struct{})
	merged := make([]Finding, 0)

	for _, result := range results {
		for _, f := range result.Findings {
			if !f.Valid() {
				log.Warn("dropping malformed finding",
					zap.String("domain", result.Domain),
					zap.String("title", f.Title))
				continue
			}
			if f.Domain == "" {
				f.Domain = result.Domain
			}
			key := f.TitleKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, f)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].DollarImpact > merged[j].DollarImpact
	})
	return merged
}

// TopN returns up to n highest-ranked findings from an already-merged list.
func TopN(findings []Finding, n int) []Finding {
	if len(findings) <= n {
		return findings
	}
	return findings[:n]
}

// ByDomain groups merged findings back into a domain-keyed map. The map is
// what sessions persist as last_findings for router continuity.
func ByDomain(findings []Finding) map[string][]Finding {
	out := make(map[string][]Finding)
	for _, f := range findings {
		out[f.Domain] = append(out[f.Domain], f)
	}
	return out
}
