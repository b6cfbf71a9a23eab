package scan

import (
	"fmt"

	"github.com/linnemanlabs/warden/internal/domain"
)

// Direction states how a rule's date field relates to the reference time.
type Direction string

const (
	// DirectionBefore fires as the date approaches (e.g. a license expiry).
	DirectionBefore Direction = "before"

	// DirectionAfter fires as time since the date accumulates (e.g. days
	// since a client was last contacted).
	DirectionAfter Direction = "after"
)

// Threshold maps a day offset to a severity. Thresholds are ordered
// most-urgent-first within a rule; the first match wins.
type Threshold struct {
	Days     int
	Severity Severity
}

// Rule is one static trigger definition: which entity type it applies to,
// which date field drives it, and the ordered severity thresholds.
type Rule struct {
	ID         string
	EntityType domain.EntityType
	Direction  Direction
	Thresholds []Threshold

	// Title and Template render the alert title and message. Both receive
	// the record label; Template additionally receives the humanized time
	// distance ("in 10 days", "today", "5 days overdue", "63 days ago").
	Title    string
	Template string
}

// Catalog is the full static rule set consumed by a scan.
type Catalog []Rule

// rulesFor returns the rules applicable to one entity type.
func (c Catalog) rulesFor(t domain.EntityType) []Rule {
	var out []Rule
	for _, r := range c {
		if r.EntityType == t {
			out = append(out, r)
		}
	}
	return out
}

// Validate checks that every rule's thresholds are ordered most-urgent-first:
// ascending day offsets for before-rules, descending for after-rules.
func (c Catalog) Validate() error {
	for _, r := range c {
		if len(r.Thresholds) == 0 {
			return fmt.Errorf("rule %s: no thresholds", r.ID)
		}
		for i := 1; i < len(r.Thresholds); i++ {
			prev, cur := r.Thresholds[i-1].Days, r.Thresholds[i].Days
			switch r.Direction {
			case DirectionBefore:
				if cur <= prev {
					return fmt.Errorf("rule %s: thresholds must ascend, got %d after %d", r.ID, cur, prev)
				}
			case DirectionAfter:
				if cur >= prev {
					return fmt.Errorf("rule %s: thresholds must descend, got %d after %d", r.ID, cur, prev)
				}
			default:
				return fmt.Errorf("rule %s: unknown direction %q", r.ID, r.Direction)
			}
		}
	}
	return nil
}

// DefaultCatalog is the built-in trigger set for the agency dashboard. One
// catalog replaces the per-feature date checks the dashboard screens used to
// duplicate.
func DefaultCatalog() Catalog {
	return Catalog{
		{
			ID:         "license_expiry",
			EntityType: domain.EntityLicense,
			Direction:  DirectionBefore,
			Thresholds: []Threshold{
				{Days: 0, Severity: SeverityCritical},
				{Days: 14, Severity: SeverityCritical},
				{Days: 30, Severity: SeverityWarning},
				{Days: 60, Severity: SeverityWarning},
				{Days: 90, Severity: SeverityWarning},
			},
			Title:    "License expiring: %s",
			Template: "%s expires %s. Renewal must be filed before the expiration date to avoid a lapse in authority.",
		},
		{
			ID:         "contract_renewal",
			EntityType: domain.EntityContract,
			Direction:  DirectionBefore,
			Thresholds: []Threshold{
				{Days: 0, Severity: SeverityCritical},
				{Days: 14, Severity: SeverityCritical},
				{Days: 30, Severity: SeverityWarning},
				{Days: 60, Severity: SeverityWarning},
			},
			Title:    "Carrier contract renewal: %s",
			Template: "%s renews %s. Confirm production requirements and renewal paperwork with the carrier.",
		},
		{
			ID:         "eo_coverage_expiry",
			EntityType: domain.EntityAgent,
			Direction:  DirectionBefore,
			Thresholds: []Threshold{
				{Days: 0, Severity: SeverityCritical},
				{Days: 30, Severity: SeverityCritical},
				{Days: 60, Severity: SeverityWarning},
			},
			Title:    "E&O coverage expiring: %s",
			Template: "E&O coverage for %s expires %s. Agents may not write business without active E&O.",
		},
		{
			ID:         "client_dormancy",
			EntityType: domain.EntityClient,
			Direction:  DirectionAfter,
			Thresholds: []Threshold{
				{Days: 90, Severity: SeverityCritical},
				{Days: 60, Severity: SeverityWarning},
			},
			Title:    "Client uncontacted: %s",
			Template: "%s was last contacted %s. Schedule an outreach touchpoint.",
		},
		{
			ID:         "onboarding_stalled",
			EntityType: domain.EntityOnboarding,
			Direction:  DirectionBefore,
			Thresholds: []Threshold{
				{Days: 0, Severity: SeverityCritical},
				{Days: 3, Severity: SeverityWarning},
				{Days: 7, Severity: SeverityWarning},
			},
			Title:    "Onboarding step due: %s",
			Template: "Onboarding step %s is due %s. Stalled onboarding is the leading cause of early client churn.",
		},
	}
}
