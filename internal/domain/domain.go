// Package domain holds the agency records the compliance engine scans.
// Records mirror how the upstream CRUD application stores them: date fields
// are ISO-8601 strings (date-only or RFC3339) and may be empty. Parsing is
// the scan engine's job so malformed upstream data degrades per-record, not
// per-run.
package domain

import "context"

// EntityType identifies which collection a record belongs to.
type EntityType string

const (
	EntityAgent      EntityType = "agent"
	EntityLicense    EntityType = "license"
	EntityContract   EntityType = "carrier_contract"
	EntityClient     EntityType = "client"
	EntityOnboarding EntityType = "onboarding_task"
)

// Agent is a producer on the agency roster.
type Agent struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	EOCoverageExpiry string `json:"eo_coverage_expiry"` // errors & omissions policy expiry
}

// License is a state insurance license held by an agent.
type License struct {
	ID             string `json:"id"`
	AgentID        string `json:"agent_id"`
	State          string `json:"state"`
	LineOfBusiness string `json:"line_of_business"`
	ExpirationDate string `json:"expiration_date"`
}

// CarrierContract is an appointment/contract between the agency and a carrier.
type CarrierContract struct {
	ID          string `json:"id"`
	AgentID     string `json:"agent_id"`
	CarrierName string `json:"carrier_name"`
	RenewalDate string `json:"renewal_date"`
}

// Client is a policyholder or prospect managed by the agency.
type Client struct {
	ID              string `json:"id"`
	AgentID         string `json:"agent_id"`
	Name            string `json:"name"`
	LastContactedAt string `json:"last_contacted_at"`
}

// OnboardingTask is one open checklist item for a new client.
// Readers return only open (incomplete) tasks.
type OnboardingTask struct {
	ID       string `json:"id"`
	ClientID string `json:"client_id"`
	Title    string `json:"title"`
	DueDate  string `json:"due_date"`
}

// Snapshot is one point-in-time read of every tracked collection.
type Snapshot struct {
	Agents     []Agent
	Licenses   []License
	Contracts  []CarrierContract
	Clients    []Client
	Onboarding []OnboardingTask
}

// Reader is the bulk-list read collaborator. One List call per entity type
// returns all records needed for a scan. A Reader failure aborts the run;
// it is the only fatal error class in the engine.
type Reader interface {
	ListAgents(ctx context.Context) ([]Agent, error)
	ListLicenses(ctx context.Context) ([]License, error)
	ListContracts(ctx context.Context) ([]CarrierContract, error)
	ListClients(ctx context.Context) ([]Client, error)
	ListOpenOnboardingTasks(ctx context.Context) ([]OnboardingTask, error)
}
