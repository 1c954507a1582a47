package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AuditCompleted("manual", "https://example.com", time.Second, map[string]int{"overall": 80}, nil)
		m.AuditFailed("manual")
		m.AlertRaised("score_drop", "high")
		m.AlertDeduplicated("score_drop")
		m.AlertTransitioned("dismissed")
		m.RuleError("score_drop")
		m.Notification("immediate", nil)
		m.AuthSessionResolved("authorized")
		m.DetectorStarted()
		m.DetectorStopped()
		m.ScheduleRun("audit", "success")
		m.ScheduleSkipped("audit")
		m.KeywordSyncFailed()
	})
}

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.AuditCompleted("scheduled", "https://example.com", 2*time.Second,
		map[string]int{"overall": 79},
		map[[2]string]int{{"technical", "failed"}: 2})
	m.Notification("immediate", errors.New("smtp down"))
	m.DetectorStarted()
	m.DetectorStarted()
	m.DetectorStopped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditsTotal.WithLabelValues("scheduled", "success")))
	assert.Equal(t, 79.0, testutil.ToFloat64(m.auditScore.WithLabelValues("https://example.com", "overall")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.findingsTotal.WithLabelValues("technical", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("immediate", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authDetectors))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
