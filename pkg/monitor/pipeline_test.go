package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/alerts"
	"github.com/amosWeiskopf/seowatch/pkg/audit"
	"github.com/amosWeiskopf/seowatch/pkg/checks"
	"github.com/amosWeiskopf/seowatch/pkg/notify"
	"github.com/amosWeiskopf/seowatch/pkg/ranking"
	"github.com/amosWeiskopf/seowatch/pkg/rules"
	"github.com/amosWeiskopf/seowatch/pkg/scheduler"
	"github.com/amosWeiskopf/seowatch/pkg/store"
)

const site = "https://example.com/"

type stubProvider struct {
	mu   sync.Mutex
	snap *models.PageSnapshot
	err  error
}

func (s *stubProvider) Snapshot(_ context.Context, _ string) (*models.PageSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.err
}

func (s *stubProvider) set(snap *models.PageSnapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap, s.err = snap, err
}

type stubSource struct {
	mu   sync.Mutex
	rows []ranking.Row
	err  error
}

func (s *stubSource) Name() string { return "search-console" }

func (s *stubSource) Query(_ context.Context, tok *oauth2.Token, _ string, _, _ time.Time) ([]ranking.Row, *oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows, tok, s.err
}

func (s *stubSource) set(rows []ranking.Row, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows, s.err = rows, err
}

type recordingDispatcher struct {
	mu    sync.Mutex
	kinds []notify.Kind
	sizes []int
}

func (d *recordingDispatcher) Dispatch(_ context.Context, _ string, kind notify.Kind, p notify.Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kinds = append(d.kinds, kind)
	d.sizes = append(d.sizes, len(p.Alerts))
	return nil
}

// titleRegistry passes both checks when the page has a title and fails both
// otherwise
func titleRegistry() *checks.Registry {
	outcome := func(s *models.PageSnapshot) []models.Finding {
		status := models.StatusPassed
		if s.Title == "" {
			status = models.StatusFailed
		}
		return []models.Finding{{Status: status, Impact: models.ImpactHigh, Message: "checked"}}
	}
	return checks.NewRegistry(
		checks.Check{Name: "title", Category: models.CategoryOnPage, Run: outcome},
		checks.Check{Name: "ttfb", Category: models.CategoryPerformance, Run: outcome},
	)
}

type harness struct {
	pipeline   *Pipeline
	mem        *store.Memory
	provider   *stubProvider
	source     *stubSource
	dispatcher *recordingDispatcher
	now        time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		mem:        store.NewMemory(),
		provider:   &stubProvider{snap: &models.PageSnapshot{Title: "Home"}},
		source:     &stubSource{},
		dispatcher: &recordingDispatcher{},
		now:        time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }
	log := logging.Discard()

	runner := audit.NewRunner(h.provider, h.mem, log, audit.WithRegistry(titleRegistry()), audit.WithClock(clock))
	manager := alerts.NewManager(h.mem, h.mem, h.dispatcher, log, alerts.WithClock(clock))
	syncer := ranking.NewSyncer(h.source, h.mem, h.mem, log, nil)
	h.pipeline = New(runner, h.mem, h.mem, rules.NewEngine(log, nil), manager, log,
		WithSyncer(syncer), WithClock(clock))

	require.NoError(t, h.mem.SaveCredential(context.Background(), &models.Credential{
		UserID: "u1", Provider: "search-console", AccessToken: "at", TokenType: "Bearer",
	}))
	return h
}

func (h *harness) rule(t *testing.T, id string, typ models.AlertType, cond string) {
	t.Helper()
	require.NoError(t, h.mem.SaveRule(context.Background(), &models.AlertRule{
		ID:        id,
		UserID:    "u1",
		Type:      typ,
		Condition: json.RawMessage(cond),
		Severity:  models.SeverityHigh,
		Enabled:   true,
		CreatedAt: h.now,
	}))
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func TestAuditRaisesScoreDropAndPerformanceAlerts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.rule(t, "drop", models.AlertScoreDrop, `{"threshold_points":10,"window_hours":24}`)
	h.rule(t, "perf", models.AlertPerformanceIssue, `{}`)

	out, err := h.pipeline.Audit(ctx, "u1", site, models.TriggeredManual)
	require.NoError(t, err)
	require.NotNil(t, out.Record)
	assert.Empty(t, out.Raised, "first audit has no baseline and no failures")

	h.advance(time.Hour)
	h.provider.set(&models.PageSnapshot{}, nil)
	out, err = h.pipeline.Audit(ctx, "u1", site, models.TriggeredManual)
	require.NoError(t, err)
	require.Len(t, out.Raised, 2)

	byRule := map[string]models.Alert{}
	for _, a := range out.Raised {
		byRule[a.RuleID] = a
	}
	assert.Equal(t, "overall", byRule["drop"].SubjectKey)
	assert.Equal(t, out.Record.ID, byRule["drop"].Details["audit_id"])
	assert.Equal(t, "performance:ttfb", byRule["perf"].SubjectKey)
	assert.Equal(t, models.AlertActive, byRule["perf"].Status)

	h.advance(time.Hour)
	out, err = h.pipeline.Audit(ctx, "u1", site, models.TriggeredManual)
	require.NoError(t, err)
	assert.Empty(t, out.Raised, "no further drop and the performance alert is still active")
}

func TestUntargetedRuleAlertsPerSite(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.rule(t, "drop", models.AlertScoreDrop, `{"threshold_points":10,"window_hours":24}`)
	const other = "https://other.example/"

	for _, target := range []string{site, other} {
		out, err := h.pipeline.Audit(ctx, "u1", target, models.TriggeredManual)
		require.NoError(t, err)
		require.Empty(t, out.Raised)
	}

	h.advance(time.Hour)
	h.provider.set(&models.PageSnapshot{}, nil)
	for _, target := range []string{site, other} {
		out, err := h.pipeline.Audit(ctx, "u1", target, models.TriggeredManual)
		require.NoError(t, err)
		require.Len(t, out.Raised, 1, target)
		assert.Equal(t, target, out.Raised[0].TargetURL)
		assert.Equal(t, "overall", out.Raised[0].SubjectKey)
		assert.Equal(t, "50", out.Raised[0].Details["current_score"])
	}

	active, err := h.mem.ListAlerts(ctx, store.AlertFilter{UserID: "u1", Status: models.AlertActive})
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestAuditWithoutRules(t *testing.T) {
	h := newHarness(t)
	out, err := h.pipeline.Audit(context.Background(), "u1", site, models.TriggeredManual)
	require.NoError(t, err)
	assert.Empty(t, out.Raised)

	hist, err := h.mem.AuditHistory(context.Background(), site, time.Time{})
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}

func TestAuditFailureSkipsEvaluation(t *testing.T) {
	h := newHarness(t)
	h.rule(t, "perf", models.AlertPerformanceIssue, `{}`)
	h.provider.set(nil, errors.New("connection refused"))

	out, err := h.pipeline.Audit(context.Background(), "u1", site, models.TriggeredManual)
	assert.Error(t, err)
	assert.Nil(t, out)
}

func TestMalformedRuleReportedWithoutBlockingOthers(t *testing.T) {
	h := newHarness(t)
	h.rule(t, "broken", models.AlertScoreDrop, `{"threshold":10}`)
	h.rule(t, "perf", models.AlertPerformanceIssue, `{}`)
	h.provider.set(&models.PageSnapshot{}, nil)

	out, err := h.pipeline.Audit(context.Background(), "u1", site, models.TriggeredManual)
	require.NoError(t, err)
	require.Len(t, out.RuleErrors, 1)
	assert.ErrorIs(t, out.RuleErrors[0], rules.ErrMalformedCondition)
	require.Len(t, out.Raised, 1)
	assert.Equal(t, "perf", out.Raised[0].RuleID)
}

func TestSyncKeywordsRaisesKeywordChange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.rule(t, "kw", models.AlertKeywordChange, `{"threshold_positions":5,"window_hours":72}`)
	require.NoError(t, h.mem.UpsertKeyword(ctx, &models.Keyword{Keyword: "meal planner", TargetURL: site, Trend: models.TrendStable}))

	h.source.set([]ranking.Row{{Keyword: "meal planner", Position: 4.6}}, nil)
	out, err := h.pipeline.SyncKeywords(ctx, "u1", site, "")
	require.NoError(t, err)
	require.Len(t, out.Sync.Series, 1)
	assert.Empty(t, out.Raised)

	h.source.set([]ranking.Row{{Keyword: "meal planner", Position: 19.8}}, nil)
	out, err = h.pipeline.SyncKeywords(ctx, "u1", site, "")
	require.NoError(t, err)
	require.Len(t, out.Raised, 1)
	assert.Equal(t, "meal planner", out.Raised[0].SubjectKey)
	assert.Equal(t, "-15", out.Raised[0].Details["change"])
}

func TestSyncFailureRaisesSourceAlert(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.rule(t, "src", models.AlertExternalSourceIssue, `{"consecutive_failures":2}`)
	require.NoError(t, h.mem.UpsertKeyword(ctx, &models.Keyword{Keyword: "meal planner", TargetURL: site}))
	h.source.set(nil, errors.New("quota exceeded"))

	out, err := h.pipeline.SyncKeywords(ctx, "u1", site, "")
	var srcErr *ranking.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, 1, srcErr.Failures)
	assert.Empty(t, out.Raised)

	out, err = h.pipeline.SyncKeywords(ctx, "u1", site, "")
	require.Error(t, err)
	require.Len(t, out.Raised, 1)
	assert.Equal(t, "source:search-console", out.Raised[0].SubjectKey)
	assert.Equal(t, "2", out.Raised[0].Details["consecutive_failures"])
}

func TestSyncWithoutSyncer(t *testing.T) {
	h := newHarness(t)
	h.pipeline.syncer = nil
	_, err := h.pipeline.SyncKeywords(context.Background(), "u1", site, "")
	assert.ErrorIs(t, err, ErrNoSyncer)
}

func newScheduler(h *harness) *scheduler.Scheduler {
	s := scheduler.New(h.mem, logging.Discard(),
		scheduler.WithClock(func() time.Time { return h.now }),
		scheduler.WithSignalHandler(h.pipeline.SignalHandler()),
	)
	h.pipeline.RegisterJobs(s)
	return s
}

func TestScheduledSyncFailureAlertsOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.rule(t, "src", models.AlertExternalSourceIssue, `{}`)
	require.NoError(t, h.mem.UpsertKeyword(ctx, &models.Keyword{Keyword: "meal planner", TargetURL: site}))
	h.source.set(nil, errors.New("quota exceeded"))

	s := newScheduler(h)
	sched := &models.MonitoringSchedule{
		UserID:         "u1",
		Type:           models.ScheduleKeywordSync,
		CronExpression: "0 * * * *",
		Enabled:        true,
		Config:         map[string]string{models.ConfigTargetURL: site},
	}
	require.NoError(t, s.Add(ctx, sched))

	require.Error(t, s.RunNow(ctx, sched.ID))

	all, err := h.mem.ListAlerts(ctx, store.AlertFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "schedule:"+sched.ID, all[0].SubjectKey)

	stored, err := h.mem.GetSchedule(ctx, sched.ID)
	require.NoError(t, err)
	assert.True(t, stored.Enabled)
	assert.Equal(t, 1, stored.ConsecutiveFailures)
}

func TestScheduledAuditRuns(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	s := newScheduler(h)
	sched := &models.MonitoringSchedule{
		UserID:         "u1",
		Type:           models.ScheduleAudit,
		CronExpression: "@daily",
		Enabled:        true,
		Config:         map[string]string{models.ConfigTargetURL: site},
	}
	require.NoError(t, s.Add(ctx, sched))
	require.NoError(t, s.RunNow(ctx, sched.ID))

	hist, err := h.mem.AuditHistory(ctx, site, time.Time{})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, models.TriggeredScheduled, hist[0].TriggeredBy)
}

func TestDigestJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	prefs := models.DefaultPreferences("u1")
	prefs.Address = "ops@example.com"
	prefs.ImmediateAlerts = false
	prefs.DailyDigest = true
	require.NoError(t, h.mem.SavePreferences(ctx, &prefs))

	h.rule(t, "perf", models.AlertPerformanceIssue, `{}`)
	h.provider.set(&models.PageSnapshot{}, nil)
	_, err := h.pipeline.Audit(ctx, "u1", site, models.TriggeredManual)
	require.NoError(t, err)

	h.advance(time.Hour)
	s := newScheduler(h)
	sched := &models.MonitoringSchedule{
		UserID:         "u1",
		Type:           models.ScheduleDailyDigest,
		CronExpression: "0 8 * * *",
		Enabled:        true,
	}
	require.NoError(t, s.Add(ctx, sched))
	require.NoError(t, s.RunNow(ctx, sched.ID))

	require.Equal(t, []notify.Kind{notify.KindDailyDigest}, h.dispatcher.kinds)
	assert.Equal(t, []int{1}, h.dispatcher.sizes)
}
