package scan

import (
	"context"
	"sort"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/warden/internal/domain"
)

// ScanStats carries evaluation-side tallies the dispatcher cannot know.
type ScanStats struct {
	BySeverity       map[Severity]int
	ByRule           map[string]int
	EvaluationErrors int
}

// Scan evaluates every entity against every rule applicable to its type and
// returns the combined issue list in authoritative urgency order:
// severity descending, then daysDelta ascending, ties broken by entity ID
// for stability. This ordering governs both display and per-run dispatch
// caps.
//
// Cost is linear in entities × rules-for-that-type; rules never cross entity
// types. Per-category counts are produced regardless of dispatch outcome.
func Scan(ctx context.Context, snap *domain.Snapshot, catalog Catalog, now time.Time, logger log.Logger) ([]Issue, ScanStats) {
	stats := ScanStats{
		BySeverity: make(map[Severity]int),
		ByRule:     make(map[string]int),
	}

	var issues []Issue
	for _, t := range []domain.EntityType{
		domain.EntityAgent,
		domain.EntityLicense,
		domain.EntityContract,
		domain.EntityClient,
		domain.EntityOnboarding,
	} {
		rules := catalog.rulesFor(t)
		if len(rules) == 0 {
			continue
		}
		for _, rec := range records(snap, t) {
			for _, r := range rules {
				issue, ok, err := Evaluate(rec, r, now)
				if err != nil {
					stats.EvaluationErrors++
					logger.Warn(ctx, "skipping unevaluable record",
						"rule", r.ID,
						"entity_type", rec.Type,
						"entity_id", rec.ID,
						"error", err,
					)
					continue
				}
				if !ok {
					continue
				}
				issues = append(issues, issue)
				stats.BySeverity[issue.Severity]++
				stats.ByRule[issue.RuleID]++
			}
		}
	}

	sort.SliceStable(issues, func(i, j int) bool {
		a, b := issues[i], issues[j]
		if a.Severity.weight() != b.Severity.weight() {
			return a.Severity.weight() > b.Severity.weight()
		}
		if a.DaysDelta != b.DaysDelta {
			return a.DaysDelta < b.DaysDelta
		}
		return a.EntityID < b.EntityID
	})

	return issues, stats
}
