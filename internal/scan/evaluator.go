package scan

import (
	"errors"
	"fmt"
	"time"

	"github.com/linnemanlabs/warden/internal/domain"
)

// ErrBadDate marks a date field that is present but unparseable. The
// orchestrator logs it and skips the (entity, rule) pair; it never fails a
// run.
var ErrBadDate = errors.New("unparseable date value")

// Record is the evaluator's uniform view of one entity: its identity, a
// human-readable label for messages, and the raw date value a rule inspects.
type Record struct {
	Type  domain.EntityType
	ID    string
	Label string
	Date  string
}

// dateLayouts are the formats the upstream CRUD app writes.
var dateLayouts = []string{"2006-01-02", time.RFC3339}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, raw)
}

// daysBetween returns whole calendar days from now until t in UTC.
// Negative when t is in the past.
func daysBetween(now, t time.Time) int {
	a := now.UTC().Truncate(24 * time.Hour)
	b := t.UTC().Truncate(24 * time.Hour)
	return int(b.Sub(a) / (24 * time.Hour))
}

// Evaluate applies one rule to one record at the given reference time.
//
// It is pure: identical inputs always yield an identical result and no I/O
// happens here. A missing date returns (zero, false, nil): absent data is
// not a condition. A malformed date returns an ErrBadDate-wrapped error.
//
// daysDelta is signed days until the record's date (negative once the date
// has passed), so one ascending sort covers both directions. Thresholds are
// walked most-urgent-first and the boundary is inclusive on the tighter
// side: daysDelta == 30 with before-thresholds [0,14,30,60,90] lands in
// bucket "30", not "60".
func Evaluate(rec Record, r Rule, now time.Time) (Issue, bool, error) {
	if rec.Date == "" {
		return Issue{}, false, nil
	}

	t, err := parseDate(rec.Date)
	if err != nil {
		return Issue{}, false, fmt.Errorf("rule %s, %s %s: %w", r.ID, rec.Type, rec.ID, err)
	}

	delta := daysBetween(now, t)

	for rank, th := range r.Thresholds {
		if !matches(r.Direction, delta, th.Days) {
			continue
		}
		return Issue{
			EntityType: rec.Type,
			EntityID:   rec.ID,
			Label:      rec.Label,
			RuleID:     r.ID,
			DaysDelta:  delta,
			Severity:   th.Severity,
			Bucket:     fmt.Sprintf("%d", th.Days),
			Rank:       rank,
			Title:      fmt.Sprintf(r.Title, rec.Label),
			Message:    fmt.Sprintf(r.Template, rec.Label, humanDays(delta, r.Direction)),
			ComputedAt: now,
		}, true, nil
	}

	// Condition too far away for any threshold.
	return Issue{}, false, nil
}

func matches(dir Direction, delta, boundary int) bool {
	switch dir {
	case DirectionBefore:
		return delta <= boundary
	case DirectionAfter:
		return delta <= -boundary
	default:
		return false
	}
}

// humanDays renders a signed day delta for alert messages.
func humanDays(delta int, dir Direction) string {
	switch {
	case delta == 0:
		return "today"
	case delta > 0:
		return fmt.Sprintf("in %d days", delta)
	case dir == DirectionAfter:
		return fmt.Sprintf("%d days ago", -delta)
	default:
		return fmt.Sprintf("%d days overdue", -delta)
	}
}

// records flattens a snapshot collection into the evaluator's uniform view.
func records(snap *domain.Snapshot, t domain.EntityType) []Record {
	var out []Record
	switch t {
	case domain.EntityAgent:
		for _, a := range snap.Agents {
			out = append(out, Record{Type: t, ID: a.ID, Label: a.Name, Date: a.EOCoverageExpiry})
		}
	case domain.EntityLicense:
		for _, l := range snap.Licenses {
			label := fmt.Sprintf("%s %s license %s", l.State, l.LineOfBusiness, l.ID)
			out = append(out, Record{Type: t, ID: l.ID, Label: label, Date: l.ExpirationDate})
		}
	case domain.EntityContract:
		for _, c := range snap.Contracts {
			label := fmt.Sprintf("%s contract %s", c.CarrierName, c.ID)
			out = append(out, Record{Type: t, ID: c.ID, Label: label, Date: c.RenewalDate})
		}
	case domain.EntityClient:
		for _, c := range snap.Clients {
			out = append(out, Record{Type: t, ID: c.ID, Label: c.Name, Date: c.LastContactedAt})
		}
	case domain.EntityOnboarding:
		for _, o := range snap.Onboarding {
			out = append(out, Record{Type: t, ID: o.ID, Label: o.Title, Date: o.DueDate})
		}
	}
	return out
}
