package scan

import "context"

// Ledger is the idempotency store that prevents re-triggering the same
// condition on every run. Reserve must be atomic per key: when two
// concurrent runs race on the same key, exactly one observes an approving
// decision and the loser observes DecisionAlreadyHandled; a conflict is
// never surfaced as an error.
//
// Keys carry the bucket, so an issue escalating to a more urgent bucket
// reserves a fresh key (DecisionEscalated) while an issue remaining in its
// bucket collides with the existing entry (DecisionAlreadyHandled). An
// unresolved entry at an equal-or-more-urgent bucket for the same
// entity/rule also suppresses, so a partially remedied condition does not
// re-alert at a looser tier while the tighter alert is still open.
type Ledger interface {
	// Reserve performs the atomic check-and-set for one issue key.
	// rank is the issue's threshold index (0 = most urgent).
	Reserve(ctx context.Context, key LedgerKey, rank int) (Decision, error)

	// Peek returns the decision Reserve would make without writing.
	// Used by dry runs.
	Peek(ctx context.Context, key LedgerKey, rank int) (Decision, error)

	// Attach binds the created alert's ID to a reserved key.
	Attach(ctx context.Context, key LedgerKey, alertID string) error

	// Release drops a reservation, re-arming the key for future runs.
	// Called when a reserved dispatch fails or is deferred by a cap.
	Release(ctx context.Context, key LedgerKey) error

	// ReleaseAlert drops whichever entry holds the given alert ID. Called
	// on manual alert resolution so a still-active condition re-raises on
	// the next scan.
	ReleaseAlert(ctx context.Context, alertID string) error
}
