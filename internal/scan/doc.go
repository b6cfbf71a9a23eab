// Package scan provides the business boundary for Warden's compliance
// automation engine. It defines the trigger catalog (declarative rules), the
// pure condition evaluator, the orchestrator that turns entity snapshots into
// an urgency-ordered issue list, the deduplication ledger contract, the
// action dispatcher, and the Service that exposes one idempotent batch
// operation: run a scan and return its summary.
package scan
