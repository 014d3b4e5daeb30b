// Package advisor generates the sit-down advisor report: a full agent
// fan-out condensed into headline, full picture, and do-not-do sections,
// cached for a short window so repeat opens are instant.
package advisor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"finsight/internal/agents"
	"finsight/internal/insight"
	"finsight/internal/logging"
	"finsight/internal/portfolio"
	"finsight/internal/rules"
	"finsight/internal/snapshot"
	"finsight/internal/store"
	"finsight/internal/synthesis"
)

const (
	CacheWindow = 10 * time.Minute

	promptFindingCount = 5
	contextFindingCap  = 10
)

// Report is the advisor payload returned to clients.
type Report struct {
	Headline         string    `json:"headline"`
	FullPicture      string    `json:"full_picture"`
	DoNotDo          string    `json:"do_not_do"`
	TotalOpportunity int64     `json:"total_opportunity"`
	Chips            []string  `json:"chips"`
	GeneratedAt      time.Time `json:"generated_at"`
	Cached           bool      `json:"cached"`
}

// SnapshotFunc builds the live portfolio snapshot.
type SnapshotFunc func(ctx context.Context) (snapshot.Snapshot, error)

// Generator produces advisor reports.
type Generator struct {
	store       *store.Store
	invoker     *agents.Invoker
	synthesizer *synthesis.Synthesizer
	snapshot    SnapshotFunc
	cacheWindow time.Duration
}

func NewGenerator(st *store.Store, inv *agents.Invoker, syn *synthesis.Synthesizer, snap SnapshotFunc) *Generator {
	return &Generator{
		store:       st,
		invoker:     inv,
		synthesizer: syn,
		snapshot:    snap,
		cacheWindow: CacheWindow,
	}
}

// Generate returns the advisor report for the user, serving from cache when
// a recent report exists. Unlike the greeting, synthesis failure here is an
// error: a report with empty sections is worse than no report.
func (g *Generator) Generate(ctx context.Context, userID int64, rs rules.Ruleset) (Report, error) {
	log := logging.Get(logging.CategoryAdvisor)

	if cached, err := g.store.CachedAdvisorReport(userID, g.cacheWindow); err != nil {
		log.Warn("advisor cache lookup failed", zap.Error(err))
	} else if cached != nil {
		return Report{
			Headline:         cached.Headline,
			FullPicture:      cached.FullPicture,
			DoNotDo:          cached.DoNotDo,
			TotalOpportunity: cached.TotalOpportunity,
			Chips:            cached.Chips,
			GeneratedAt:      cached.GeneratedAt,
			Cached:           true,
		}, nil
	}

	snap, err := g.snapshot(ctx)
	if err != nil {
		return Report{}, err
	}

	outcomes := g.invoker.RunAll(ctx, agents.All(), snap, rs)
	var results []insight.CapabilityResult
	for _, o := range outcomes {
		if o.Err != nil {
			log.Error("advisor agent failed",
				zap.String("agent", string(o.Agent)), zap.Error(o.Err))
			continue
		}
		for i := range o.Findings {
			o.Findings[i].Source = string(o.Agent)
		}
		results = append(results, o.Result())
	}
	merged := insight.Merge(results...)

	sections, err := g.synthesizer.Advise(ctx,
		insight.TopN(merged, contextFindingCap), portfolio.Summarize(snap))
	if err != nil {
		return Report{}, err
	}

	var totalOpportunity float64
	for _, f := range insight.TopN(merged, promptFindingCount) {
		totalOpportunity += f.DollarImpact
	}

	chips := g.synthesizer.AdvisorChips(ctx, sections.Headline, sections.FullPicture)

	now := time.Now().UTC()
	report := Report{
		Headline:         sections.Headline,
		FullPicture:      sections.FullPicture,
		DoNotDo:          sections.DoNotDo,
		TotalOpportunity: int64(totalOpportunity),
		Chips:            chips,
		GeneratedAt:      now,
	}

	if err := g.store.SaveAdvisorReport(store.AdvisorReport{
		UserID:           userID,
		Headline:         report.Headline,
		FullPicture:      report.FullPicture,
		DoNotDo:          report.DoNotDo,
		TotalOpportunity: report.TotalOpportunity,
		Chips:            report.Chips,
		GeneratedAt:      now,
	}); err != nil {
		log.Warn("failed to cache advisor report", zap.Error(err))
	}

	return report, nil
}
