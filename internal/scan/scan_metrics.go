package scan

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the scan subsystem.
type Metrics struct {
	RunsTotal           *prometheus.CounterVec
	RunDuration         *prometheus.HistogramVec
	IssuesTotal         *prometheus.CounterVec
	AlertsCreatedTotal  prometheus.Counter
	TasksCreatedTotal   prometheus.Counter
	SuppressedTotal     prometheus.Counter
	EscalationsTotal    prometheus.Counter
	DeferredTotal       prometheus.Counter
	DispatchErrorsTotal prometheus.Counter
	NotificationsTotal  prometheus.Counter
}

// NewMetrics registers and returns scan metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_scan_runs_total",
			Help: "Total scan runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_scan_duration_seconds",
			Help:    "Duration of scan runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms .. ~100s
		}, []string{"outcome"}),
		IssuesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_scan_issues_total",
			Help: "Issues detected per run by severity.",
		}, []string{"severity"}),
		AlertsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_alerts_created_total",
			Help: "Alerts persisted by the dispatcher.",
		}),
		TasksCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_tasks_created_total",
			Help: "Auto-generated tasks persisted by the dispatcher.",
		}),
		SuppressedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_issues_suppressed_total",
			Help: "Issues suppressed by the deduplication ledger.",
		}),
		EscalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_escalations_total",
			Help: "Issues that escalated to a more urgent bucket.",
		}),
		DeferredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_issues_deferred_total",
			Help: "Approved issues deferred by a per-run cap.",
		}),
		DispatchErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_dispatch_errors_total",
			Help: "Fault-isolated dispatch failures (stores, notifier, ledger).",
		}),
		NotificationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_admin_notifications_total",
			Help: "Admin notifications sent.",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.IssuesTotal,
		m.AlertsCreatedTotal,
		m.TasksCreatedTotal,
		m.SuppressedTotal,
		m.EscalationsTotal,
		m.DeferredTotal,
		m.DispatchErrorsTotal,
		m.NotificationsTotal,
	)

	return m
}

// observeRun records the outcome of one completed run.
func (m *Metrics) observeRun(s *RunSummary) {
	if m == nil {
		return
	}
	outcome := "complete"
	if s.Partial {
		outcome = "partial"
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.WithLabelValues(outcome).Observe(s.Duration)
	for sev, n := range s.BySeverity {
		m.IssuesTotal.WithLabelValues(string(sev)).Add(float64(n))
	}
	m.AlertsCreatedTotal.Add(float64(s.AlertsCreated))
	m.TasksCreatedTotal.Add(float64(s.TasksCreated))
	m.SuppressedTotal.Add(float64(s.Suppressed))
	m.EscalationsTotal.Add(float64(s.Escalations))
	m.DeferredTotal.Add(float64(s.Deferred))
	m.DispatchErrorsTotal.Add(float64(s.ErrorsCount))
	if s.CriticalNotificationSent {
		m.NotificationsTotal.Inc()
	}
}

// observeReadFailure records a run aborted by a collection read error.
func (m *Metrics) observeReadFailure() {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues("read_failed").Inc()
}
