package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config holds service-specific configuration alongside the common
// cfg.Registerable and cfg.Validatable interfaces.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	DatabaseURL           string
	RedisURL              string
	SlackWebhookURL       string
	ClaudeAPIKey          string
	ClaudeModel           string

	TaskCap                 int
	AlertCapPerCategory     int
	CriticalNotifyThreshold int
	WarningNotifyThreshold  int
	RunBudgetSeconds        int
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory stores)")
	fs.StringVar(&c.RedisURL, "redis-url", "", "Redis URL for the dedup ledger (empty = database-backed or in-memory ledger)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for admin notifications (empty = disabled)")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude LLM provider (empty = no narrative enrichment)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.IntVar(&c.TaskCap, "task-cap", 5, "max tasks created per scan run (1..100)")
	fs.IntVar(&c.AlertCapPerCategory, "alert-cap-per-category", 3, "max alerts created per category per scan run (1..100)")
	fs.IntVar(&c.CriticalNotifyThreshold, "critical-notify-threshold", 5, "critical issue count that triggers the admin notification (>=1)")
	fs.IntVar(&c.WarningNotifyThreshold, "warning-notify-threshold", 10, "warning issue count that triggers the admin notification (>=1)")
	fs.IntVar(&c.RunBudgetSeconds, "run-budget-seconds", 60, "time budget for one scan run, 0 disables (0..600)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.TaskCap <= 0 || c.TaskCap > 100 {
		errs = append(errs, fmt.Errorf("invalid TASK_CAP %d (must be 1..100)", c.TaskCap))
	}
	if c.AlertCapPerCategory <= 0 || c.AlertCapPerCategory > 100 {
		errs = append(errs, fmt.Errorf("invalid ALERT_CAP_PER_CATEGORY %d (must be 1..100)", c.AlertCapPerCategory))
	}
	if c.CriticalNotifyThreshold < 1 {
		errs = append(errs, fmt.Errorf("invalid CRITICAL_NOTIFY_THRESHOLD %d (must be >= 1)", c.CriticalNotifyThreshold))
	}
	if c.WarningNotifyThreshold < 1 {
		errs = append(errs, fmt.Errorf("invalid WARNING_NOTIFY_THRESHOLD %d (must be >= 1)", c.WarningNotifyThreshold))
	}
	if c.RunBudgetSeconds < 0 || c.RunBudgetSeconds > 600 {
		errs = append(errs, fmt.Errorf("invalid RUN_BUDGET_SECONDS %d (must be 0..600)", c.RunBudgetSeconds))
	}

	// The Claude enricher is optional, but when enabled it needs a model.
	if c.ClaudeAPIKey != "" && c.ClaudeModel == "" {
		errs = append(errs, errors.New("CLAUDE_MODEL is required when CLAUDE_API_KEY is set"))
	}

	// The Redis ledger only makes sense alongside a real database; without
	// one the stores are in-memory and a persistent ledger would outlive them.
	if c.RedisURL != "" && c.DatabaseURL == "" {
		errs = append(errs, errors.New("REDIS_URL requires DATABASE_URL"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
