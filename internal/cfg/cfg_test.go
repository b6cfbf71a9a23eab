package cfg

import (
	"flag"
	"strings"
	"testing"
)

// validBase returns a Config with all fields set to valid values.
func validBase() Config {
	return Config{
		DrainSeconds:            60,
		ShutdownBudgetSeconds:   90,
		APIPort:                 8080,
		TaskCap:                 5,
		AlertCapPerCategory:     3,
		CriticalNotifyThreshold: 5,
		WarningNotifyThreshold:  10,
		RunBudgetSeconds:        60,
		ClaudeModel:             "claude-sonnet-4-20250514",
	}
}

func TestRegisterFlags_Defaults(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	if err := fs.Parse(nil); err != nil {
		t.Fatalf("parse empty args: %v", err)
	}

	if c.DrainSeconds != 60 {
		t.Errorf("DrainSeconds = %d, want 60", c.DrainSeconds)
	}
	if c.ShutdownBudgetSeconds != 90 {
		t.Errorf("ShutdownBudgetSeconds = %d, want 90", c.ShutdownBudgetSeconds)
	}
	if c.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", c.APIPort)
	}
	if c.TaskCap != 5 {
		t.Errorf("TaskCap = %d, want 5", c.TaskCap)
	}
	if c.AlertCapPerCategory != 3 {
		t.Errorf("AlertCapPerCategory = %d, want 3", c.AlertCapPerCategory)
	}
	if c.CriticalNotifyThreshold != 5 {
		t.Errorf("CriticalNotifyThreshold = %d, want 5", c.CriticalNotifyThreshold)
	}
	if c.WarningNotifyThreshold != 10 {
		t.Errorf("WarningNotifyThreshold = %d, want 10", c.WarningNotifyThreshold)
	}
	if c.RunBudgetSeconds != 60 {
		t.Errorf("RunBudgetSeconds = %d, want 60", c.RunBudgetSeconds)
	}
}

func TestRegisterFlags_Override(t *testing.T) {
	t.Parallel()

	var c Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.RegisterFlags(fs)

	args := []string{
		"-drain-seconds", "30",
		"-shutdown-budget-seconds", "120",
		"-http-port", "9090",
		"-task-cap", "10",
		"-alert-cap-per-category", "2",
		"-run-budget-seconds", "0",
		"-database-url", "postgres://localhost/warden",
		"-redis-url", "redis://localhost:6379/0",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}

	if c.DrainSeconds != 30 {
		t.Errorf("DrainSeconds = %d, want 30", c.DrainSeconds)
	}
	if c.TaskCap != 10 {
		t.Errorf("TaskCap = %d, want 10", c.TaskCap)
	}
	if c.AlertCapPerCategory != 2 {
		t.Errorf("AlertCapPerCategory = %d, want 2", c.AlertCapPerCategory)
	}
	if c.RunBudgetSeconds != 0 {
		t.Errorf("RunBudgetSeconds = %d, want 0", c.RunBudgetSeconds)
	}
	if c.DatabaseURL != "postgres://localhost/warden" {
		t.Errorf("DatabaseURL = %q", c.DatabaseURL)
	}
	if c.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("RedisURL = %q", c.RedisURL)
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"drain too low", func(c *Config) { c.DrainSeconds = 0 }, "DRAIN_SECONDS"},
		{"drain too high", func(c *Config) { c.DrainSeconds = 301 }, "DRAIN_SECONDS"},
		{"budget not above drain", func(c *Config) { c.ShutdownBudgetSeconds = 60 }, "must be greater than"},
		{"bad port", func(c *Config) { c.APIPort = 70000 }, "HTTP_PORT"},
		{"zero task cap", func(c *Config) { c.TaskCap = 0 }, "TASK_CAP"},
		{"zero alert cap", func(c *Config) { c.AlertCapPerCategory = 0 }, "ALERT_CAP_PER_CATEGORY"},
		{"zero critical threshold", func(c *Config) { c.CriticalNotifyThreshold = 0 }, "CRITICAL_NOTIFY_THRESHOLD"},
		{"zero warning threshold", func(c *Config) { c.WarningNotifyThreshold = 0 }, "WARNING_NOTIFY_THRESHOLD"},
		{"negative run budget", func(c *Config) { c.RunBudgetSeconds = -1 }, "RUN_BUDGET_SECONDS"},
		{"claude key without model", func(c *Config) { c.ClaudeAPIKey, c.ClaudeModel = "sk-test", "" }, "CLAUDE_MODEL"},
		{"redis without database", func(c *Config) { c.RedisURL = "redis://localhost" }, "REDIS_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := validBase()
			tt.mutate(&c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_JoinsMultipleErrors(t *testing.T) {
	t.Parallel()

	c := validBase()
	c.DrainSeconds = 0
	c.TaskCap = 0

	err := c.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "DRAIN_SECONDS") || !strings.Contains(err.Error(), "TASK_CAP") {
		t.Errorf("joined error %q missing a field", err)
	}
}
