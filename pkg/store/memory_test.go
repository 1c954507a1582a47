package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

func newAlert(id, ruleID, subject string, created time.Time) *models.Alert {
	return &models.Alert{
		ID:         id,
		RuleID:     ruleID,
		UserID:     "u1",
		Type:       models.AlertScoreDrop,
		TargetURL:  "https://example.com",
		SubjectKey: subject,
		Severity:   models.SeverityHigh,
		Status:     models.AlertActive,
		CreatedAt:  created,
	}
}

func TestMemoryAlertDedup(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()

	ok, err := m.InsertAlertIfAbsent(ctx, newAlert("a1", "r1", "overall", now))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.InsertAlertIfAbsent(ctx, newAlert("a2", "r1", "overall", now))
	require.NoError(t, err)
	assert.False(t, ok, "second active alert for the same subject must be dropped")

	ok, err = m.InsertAlertIfAbsent(ctx, newAlert("a3", "r1", "performance", now))
	require.NoError(t, err)
	assert.True(t, ok, "different subject is a separate alert")

	other := newAlert("a5", "r1", "overall", now)
	other.TargetURL = "https://other.example"
	ok, err = m.InsertAlertIfAbsent(ctx, other)
	require.NoError(t, err)
	assert.True(t, ok, "same subject on another site is a separate alert")

	moved, err := m.TransitionAlert(ctx, "a1", models.AlertActive, models.AlertDismissed, "", now)
	require.NoError(t, err)
	assert.True(t, moved)

	ok, err = m.InsertAlertIfAbsent(ctx, newAlert("a4", "r1", "overall", now))
	require.NoError(t, err)
	assert.True(t, ok, "dismissing the active alert frees the subject")
}

func TestMemoryConcurrentInsertKeepsOneActive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var wg sync.WaitGroup
	inserted := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := m.InsertAlertIfAbsent(ctx, newAlert(string(rune('A'+i)), "r1", "overall", time.Now()))
			assert.NoError(t, err)
			inserted <- ok
		}(i)
	}
	wg.Wait()
	close(inserted)

	count := 0
	for ok := range inserted {
		if ok {
			count++
		}
	}
	assert.Equal(t, 1, count)

	active, err := m.ListAlerts(ctx, AlertFilter{Status: models.AlertActive})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestMemoryTransitionAlert(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now()
	_, err := m.InsertAlertIfAbsent(ctx, newAlert("a1", "r1", "overall", now))
	require.NoError(t, err)

	_, err = m.TransitionAlert(ctx, "missing", models.AlertActive, models.AlertAcknowledged, "bob", now)
	assert.ErrorIs(t, err, ErrNotFound)

	moved, err := m.TransitionAlert(ctx, "a1", models.AlertActive, models.AlertAcknowledged, "bob", now)
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = m.TransitionAlert(ctx, "a1", models.AlertActive, models.AlertAcknowledged, "bob", now)
	require.NoError(t, err)
	assert.False(t, moved, "status no longer matches")

	a, err := m.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, models.AlertAcknowledged, a.Status)
	assert.Equal(t, "bob", a.AcknowledgedBy)
	require.NotNil(t, a.AcknowledgedAt)
}

func TestMemoryListAlertsFilter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, subject := range []string{"a", "b", "c"} {
		_, err := m.InsertAlertIfAbsent(ctx, newAlert("id-"+subject, "r1", subject, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	got, err := m.ListAlerts(ctx, AlertFilter{UserID: "u1", Since: base.Add(30 * time.Minute), Until: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "id-b", got[0].ID)

	all, err := m.ListAlerts(ctx, AlertFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "id-c", all[0].ID, "newest first")
}

func TestMemoryAuditHistory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.SaveAudit(ctx, &models.AuditRecord{
			ID:        string(rune('a' + i)),
			TargetURL: "https://example.com",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, m.SaveAudit(ctx, &models.AuditRecord{ID: "other", TargetURL: "https://other.com", Timestamp: base}))

	hist, err := m.AuditHistory(ctx, "https://example.com", base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "c", hist[0].ID)
	assert.Equal(t, "b", hist[1].ID)

	_, err = m.GetAudit(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRecordRun(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.SaveSchedule(ctx, &models.MonitoringSchedule{ID: "s1", Enabled: true, CronExpression: "0 * * * *"}))

	now := time.Now()
	s, err := m.RecordRun(ctx, "s1", now, models.RunFailed, "boom")
	require.NoError(t, err)
	assert.Equal(t, 1, s.ConsecutiveFailures)
	s, err = m.RecordRun(ctx, "s1", now, models.RunFailed, "boom")
	require.NoError(t, err)
	assert.Equal(t, 2, s.ConsecutiveFailures)
	assert.True(t, s.Enabled, "failures never disable a schedule")

	s, err = m.RecordRun(ctx, "s1", now, models.RunSuccess, "")
	require.NoError(t, err)
	assert.Equal(t, 0, s.ConsecutiveFailures)
	assert.Equal(t, models.RunSuccess, s.LastRunStatus)
	assert.Empty(t, s.LastError)

	_, err = m.RecordRun(ctx, "nope", now, models.RunSuccess, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	a := newAlert("a1", "r1", "s", time.Now())
	a.Details = map[string]string{"k": "v"}
	_, err := m.InsertAlertIfAbsent(ctx, a)
	require.NoError(t, err)

	a.Details["k"] = "changed"
	got, err := m.GetAlert(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "v", got.Details["k"])
}

func TestMemoryObservations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, pos := range []int{5, 3, 8} {
		require.NoError(t, m.AppendObservation(ctx, models.KeywordObservation{
			Keyword: "soup", TargetURL: "https://example.com", Position: pos, ObservedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	obs, err := m.Observations(ctx, "https://example.com", "soup", base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, 3, obs[0].Position)
	assert.Equal(t, 8, obs[1].Position)
}
