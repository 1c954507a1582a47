// Package metrics exposes Prometheus collectors for audits, alerts,
// authorization sessions and scheduled jobs. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the collectors
type Metrics struct {
	auditsTotal       *prometheus.CounterVec
	auditDuration     prometheus.Histogram
	auditScore        *prometheus.GaugeVec
	findingsTotal     *prometheus.CounterVec
	alertsRaised      *prometheus.CounterVec
	alertsDeduped     *prometheus.CounterVec
	alertTransitions  *prometheus.CounterVec
	ruleErrors        *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	authSessions      *prometheus.CounterVec
	authDetectors     prometheus.Gauge
	scheduleRuns      *prometheus.CounterVec
	scheduleSkips     *prometheus.CounterVec
	keywordSyncErrors prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		auditsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seowatch_audits_total",
			Help: "Audit runs by trigger and outcome",
		}, []string{"triggered_by", "outcome"}),
		auditDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seowatch_audit_duration_seconds",
			Help:    "Wall time of completed audits",
			Buckets: prometheus.DefBuckets,
		}),
		auditScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "seowatch_audit_score",
			Help: "Latest score per target and category",
		}, []string{"target", "category"}),
		findingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seowatch_findings_total",
			Help: "Findings produced by audits",
		}, []string{"category", "status"}),
		alertsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seowatch_alerts_raised_total",
			Help: "Alerts persisted",
		}, []string{"type", "severity"}),
		alertsDeduped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seowatch_alerts_deduplicated_total",
			Help: "Alert candidates dropped because an active alert already covers the subject",
		}, []string{"type"}),
		alertTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seowatch_alert_transitions_total",
			Help: "Alert lifecycle transitions",
		}, []string{"to"}),
		ruleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seowatch_rule_errors_total",
			Help: "Rules skipped because their condition could not be evaluated",
		}, []string{"type"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seowatch_notifications_total",
			Help: "Notification deliveries by kind and outcome",
		}, []string{"kind", "outcome"}),
		authSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seowatch_auth_sessions_total",
			Help: "External authorization sessions by terminal state",
		}, []string{"state"}),
		authDetectors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seowatch_auth_active_detectors",
			Help: "Completion detectors currently running",
		}),
		scheduleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seowatch_schedule_runs_total",
			Help: "Scheduled job runs by type and status",
		}, []string{"type", "status"}),
		scheduleSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seowatch_schedule_skips_total",
			Help: "Due schedules skipped because a previous run still holds the lock",
		}, []string{"type"}),
		keywordSyncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seowatch_keyword_sync_errors_total",
			Help: "Failed keyword data pulls",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.auditsTotal, m.auditDuration, m.auditScore, m.findingsTotal,
			m.alertsRaised, m.alertsDeduped, m.alertTransitions, m.ruleErrors,
			m.notifications, m.authSessions, m.authDetectors,
			m.scheduleRuns, m.scheduleSkips, m.keywordSyncErrors,
		)
	}
	return m
}

// AuditCompleted records a finished audit
func (m *Metrics) AuditCompleted(triggeredBy, target string, took time.Duration, scores map[string]int, findings map[[2]string]int) {
	if m == nil {
		return
	}
	m.auditsTotal.WithLabelValues(triggeredBy, "success").Inc()
	m.auditDuration.Observe(took.Seconds())
	for category, score := range scores {
		m.auditScore.WithLabelValues(target, category).Set(float64(score))
	}
	for key, n := range findings {
		m.findingsTotal.WithLabelValues(key[0], key[1]).Add(float64(n))
	}
}

// AuditFailed records an audit that produced no record
func (m *Metrics) AuditFailed(triggeredBy string) {
	if m == nil {
		return
	}
	m.auditsTotal.WithLabelValues(triggeredBy, "failure").Inc()
}

// AlertRaised records a persisted alert
func (m *Metrics) AlertRaised(alertType, severity string) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(alertType, severity).Inc()
}

// AlertDeduplicated records a dropped duplicate candidate
func (m *Metrics) AlertDeduplicated(alertType string) {
	if m == nil {
		return
	}
	m.alertsDeduped.WithLabelValues(alertType).Inc()
}

// AlertTransitioned records a lifecycle transition
func (m *Metrics) AlertTransitioned(to string) {
	if m == nil {
		return
	}
	m.alertTransitions.WithLabelValues(to).Inc()
}

// RuleError records a rule skipped during evaluation
func (m *Metrics) RuleError(ruleType string) {
	if m == nil {
		return
	}
	m.ruleErrors.WithLabelValues(ruleType).Inc()
}

// Notification records a delivery attempt
func (m *Metrics) Notification(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

// AuthSessionResolved records the terminal state of an authorization session
func (m *Metrics) AuthSessionResolved(state string) {
	if m == nil {
		return
	}
	m.authSessions.WithLabelValues(state).Inc()
}

// DetectorStarted and DetectorStopped track live completion detectors
func (m *Metrics) DetectorStarted() {
	if m == nil {
		return
	}
	m.authDetectors.Inc()
}

func (m *Metrics) DetectorStopped() {
	if m == nil {
		return
	}
	m.authDetectors.Dec()
}

// ScheduleRun records a scheduled job run
func (m *Metrics) ScheduleRun(scheduleType, status string) {
	if m == nil {
		return
	}
	m.scheduleRuns.WithLabelValues(scheduleType, status).Inc()
}

// ScheduleSkipped records a due schedule skipped because it was still running
func (m *Metrics) ScheduleSkipped(scheduleType string) {
	if m == nil {
		return
	}
	m.scheduleSkips.WithLabelValues(scheduleType).Inc()
}

// KeywordSyncFailed records a failed provider pull
func (m *Metrics) KeywordSyncFailed() {
	if m == nil {
		return
	}
	m.keywordSyncErrors.Inc()
}
