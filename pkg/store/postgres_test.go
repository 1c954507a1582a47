package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/internal/models"
)

func newMockStore(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgres(db, logging.Discard()), mock
}

func TestPostgresInsertAlertIfAbsent(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("inserted", func(t *testing.T) {
		p, mock := newMockStore(t)
		mock.ExpectExec(`(?s)INSERT INTO alerts .* ON CONFLICT \(rule_id, target_url, subject_key\) WHERE status = 'active' DO NOTHING`).
			WithArgs("a1", "r1", "u1", "score_drop", "https://example.com", "overall", "high", "", "", sqlmock.AnyArg(), "active", now).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := p.InsertAlertIfAbsent(ctx, newAlert("a1", "r1", "overall", now))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate active", func(t *testing.T) {
		p, mock := newMockStore(t)
		mock.ExpectExec(`INSERT INTO alerts`).WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := p.InsertAlertIfAbsent(ctx, newAlert("a2", "r1", "overall", now))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresTransitionAlert(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("acknowledged", func(t *testing.T) {
		p, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE alerts SET status = \$1, acknowledged_at = \$2, acknowledged_by = \$3\s+WHERE id = \$4 AND status = \$5`).
			WithArgs("acknowledged", now, "bob", "a1", "active").
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := p.TransitionAlert(ctx, "a1", models.AlertActive, models.AlertAcknowledged, "bob", now)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stale status", func(t *testing.T) {
		p, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE alerts SET status = \$1, dismissed_at`).
			WithArgs("dismissed", now, "a1", "active").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs("a1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := p.TransitionAlert(ctx, "a1", models.AlertActive, models.AlertDismissed, "", now)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing", func(t *testing.T) {
		p, mock := newMockStore(t)
		mock.ExpectExec(`UPDATE alerts`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS`).WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := p.TransitionAlert(ctx, "nope", models.AlertActive, models.AlertDismissed, "", now)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresGetAudit(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("found", func(t *testing.T) {
		p, mock := newMockStore(t)
		rows := sqlmock.NewRows([]string{"id", "target_url", "triggered_by", "created_at", "findings", "scores", "totals"}).
			AddRow("au1", "https://example.com", "manual", now,
				[]byte(`[{"category":"technical","item":"HTTPS","status":"passed","impact":"high","message":"ok"}]`),
				[]byte(`{"technical":100,"on_page":80,"performance":70,"mobile":90,"accessibility":90,"overall":85}`),
				[]byte(`{"checked":1,"passed":1}`))
		mock.ExpectQuery(`FROM audits WHERE id = \$1`).WithArgs("au1").WillReturnRows(rows)

		rec, err := p.GetAudit(ctx, "au1")
		require.NoError(t, err)
		assert.Equal(t, models.TriggeredManual, rec.TriggeredBy)
		assert.Equal(t, 85, rec.Scores.Overall)
		require.Len(t, rec.Findings, 1)
		assert.Equal(t, models.StatusPassed, rec.Findings[0].Status)
		assert.Equal(t, 1, rec.Totals.Passed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		p, mock := newMockStore(t)
		mock.ExpectQuery(`FROM audits WHERE id = \$1`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

		_, err := p.GetAudit(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresRecordRun(t *testing.T) {
	ctx := context.Background()
	p, mock := newMockStore(t)
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "type", "cron_expression", "config", "enabled",
		"last_run_at", "last_run_status", "last_error", "consecutive_failures", "created_at"}).
		AddRow("s1", "u1", "nightly", "audit", "0 6 * * *", []byte(`{"target_url":"https://example.com"}`), true,
			now, "failed", "timeout", 3, now)
	mock.ExpectQuery(`(?s)UPDATE monitoring_schedules SET.*consecutive_failures = CASE WHEN \$2 = 'failed'.*RETURNING`).
		WithArgs(now, "failed", "timeout", "s1").
		WillReturnRows(rows)

	s, err := p.RecordRun(ctx, "s1", now, models.RunFailed, "timeout")
	require.NoError(t, err)
	assert.True(t, s.Enabled)
	assert.Equal(t, 3, s.ConsecutiveFailures)
	assert.Equal(t, "https://example.com", s.Config[models.ConfigTargetURL])
	require.NotNil(t, s.LastRunAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListAlertsBuildsFilter(t *testing.T) {
	ctx := context.Background()
	p, mock := newMockStore(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "rule_id", "user_id", "type", "target_url", "subject_key", "severity", "title", "message",
		"details", "status", "created_at", "acknowledged_at", "acknowledged_by", "dismissed_at"}).
		AddRow("a1", "r1", "u1", "keyword_change", "https://example.com", "soup", "medium", "t", "m", []byte(`{"old":"3"}`), "active", since, nil, "", nil)
	mock.ExpectQuery(`FROM alerts WHERE user_id = \$1 AND status = \$2 AND created_at >= \$3 ORDER BY created_at DESC`).
		WithArgs("u1", "active", since).
		WillReturnRows(rows)

	alerts, err := p.ListAlerts(ctx, AlertFilter{UserID: "u1", Status: models.AlertActive, Since: since})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "3", alerts[0].Details["old"])
	assert.Nil(t, alerts[0].AcknowledgedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetPreferencesNotFound(t *testing.T) {
	p, mock := newMockStore(t)
	mock.ExpectQuery(`FROM notification_preferences WHERE user_id = \$1`).WithArgs("u1").WillReturnError(sql.ErrNoRows)

	_, err := p.GetPreferences(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
