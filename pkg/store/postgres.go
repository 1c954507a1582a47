package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/amosWeiskopf/seowatch/internal/config"
	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/internal/models"
)

//go:embed schema.sql
var schema string

// Postgres is a Store backed by PostgreSQL
type Postgres struct {
	db     *sql.DB
	logger logging.Logger
}

// Connect opens and pings a PostgreSQL connection pool
func Connect(cfg config.StorageConfig, logger logging.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.WithFields(logging.Fields{
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime,
	}).Info("Database connected")

	return NewPostgres(db, logger), nil
}

// NewPostgres wraps an open database handle
func NewPostgres(db *sql.DB, logger logging.Logger) *Postgres {
	return &Postgres{db: db, logger: logger}
}

// Migrate creates the tables and indexes if they do not exist
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (p *Postgres) Close() error {
	return p.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func jsonArg(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// Audits

func (p *Postgres) SaveAudit(ctx context.Context, rec *models.AuditRecord) error {
	findings, err := jsonArg(rec.Findings)
	if err != nil {
		return fmt.Errorf("failed to encode findings: %w", err)
	}
	scores, err := jsonArg(rec.Scores)
	if err != nil {
		return fmt.Errorf("failed to encode scores: %w", err)
	}
	totals, err := jsonArg(rec.Totals)
	if err != nil {
		return fmt.Errorf("failed to encode totals: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO audits (id, target_url, triggered_by, created_at, findings, scores, totals)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.TargetURL, string(rec.TriggeredBy), rec.Timestamp, findings, scores, totals)
	if err != nil {
		return fmt.Errorf("failed to save audit: %w", err)
	}
	return nil
}

const auditColumns = `id, target_url, triggered_by, created_at, findings, scores, totals`

func scanAudit(row scanner) (*models.AuditRecord, error) {
	var (
		rec                      models.AuditRecord
		triggeredBy              string
		findings, scores, totals []byte
	)
	if err := row.Scan(&rec.ID, &rec.TargetURL, &triggeredBy, &rec.Timestamp, &findings, &scores, &totals); err != nil {
		return nil, err
	}
	rec.TriggeredBy = models.TriggeredBy(triggeredBy)
	if err := json.Unmarshal(findings, &rec.Findings); err != nil {
		return nil, fmt.Errorf("failed to decode findings: %w", err)
	}
	if err := json.Unmarshal(scores, &rec.Scores); err != nil {
		return nil, fmt.Errorf("failed to decode scores: %w", err)
	}
	if err := json.Unmarshal(totals, &rec.Totals); err != nil {
		return nil, fmt.Errorf("failed to decode totals: %w", err)
	}
	return &rec, nil
}

func (p *Postgres) GetAudit(ctx context.Context, id string) (*models.AuditRecord, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+auditColumns+` FROM audits WHERE id = $1`, id)
	rec, err := scanAudit(row)
	if err != nil {
		return nil, notFound(err)
	}
	return rec, nil
}

func (p *Postgres) AuditHistory(ctx context.Context, targetURL string, since time.Time) ([]models.AuditRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+auditColumns+` FROM audits
		WHERE target_url = $1 AND created_at >= $2
		ORDER BY created_at DESC`, targetURL, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit history: %w", err)
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		rec, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Alerts

func (p *Postgres) InsertAlertIfAbsent(ctx context.Context, a *models.Alert) (bool, error) {
	details, err := jsonArg(a.Details)
	if err != nil {
		return false, fmt.Errorf("failed to encode alert details: %w", err)
	}

	res, err := p.db.ExecContext(ctx, `
		INSERT INTO alerts (id, rule_id, user_id, type, target_url, subject_key, severity, title, message, details, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (rule_id, target_url, subject_key) WHERE status = 'active' DO NOTHING`,
		a.ID, a.RuleID, a.UserID, string(a.Type), a.TargetURL, a.SubjectKey, string(a.Severity),
		a.Title, a.Message, details, string(a.Status), a.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}

const alertColumns = `id, rule_id, user_id, type, target_url, subject_key, severity, title, message, details, status,
	created_at, acknowledged_at, acknowledged_by, dismissed_at`

func scanAlert(row scanner) (*models.Alert, error) {
	var (
		a                           models.Alert
		typ, severity, status       string
		details                     []byte
		acknowledgedAt, dismissedAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.RuleID, &a.UserID, &typ, &a.TargetURL, &a.SubjectKey, &severity, &a.Title, &a.Message,
		&details, &status, &a.CreatedAt, &acknowledgedAt, &a.AcknowledgedBy, &dismissedAt)
	if err != nil {
		return nil, err
	}
	a.Type = models.AlertType(typ)
	a.Severity = models.Severity(severity)
	a.Status = models.AlertStatus(status)
	a.AcknowledgedAt = timePtr(acknowledgedAt)
	a.DismissedAt = timePtr(dismissedAt)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &a.Details); err != nil {
			return nil, fmt.Errorf("failed to decode alert details: %w", err)
		}
	}
	return &a, nil
}

func (p *Postgres) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	a, err := scanAlert(p.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

func (p *Postgres) TransitionAlert(ctx context.Context, id string, from, to models.AlertStatus, actor string, at time.Time) (bool, error) {
	var res sql.Result
	var err error
	switch to {
	case models.AlertAcknowledged:
		res, err = p.db.ExecContext(ctx, `
			UPDATE alerts SET status = $1, acknowledged_at = $2, acknowledged_by = $3
			WHERE id = $4 AND status = $5`, string(to), at, actor, id, string(from))
	case models.AlertDismissed:
		res, err = p.db.ExecContext(ctx, `
			UPDATE alerts SET status = $1, dismissed_at = $2
			WHERE id = $3 AND status = $4`, string(to), at, id, string(from))
	default:
		return false, fmt.Errorf("unsupported alert status %q", to)
	}
	if err != nil {
		return false, fmt.Errorf("failed to update alert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists bool
	if err := p.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM alerts WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to look up alert: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (p *Postgres) ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.Since.IsZero() {
		add("created_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("created_at < $%d", f.Until)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Rules

func (p *Postgres) SaveRule(ctx context.Context, r *models.AlertRule) error {
	cond := string(r.Condition)
	if cond == "" {
		cond = "{}"
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO alert_rules (id, user_id, name, type, target_url, condition, severity, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type, target_url = EXCLUDED.target_url,
			condition = EXCLUDED.condition, severity = EXCLUDED.severity, enabled = EXCLUDED.enabled`,
		r.ID, r.UserID, r.Name, string(r.Type), r.TargetURL, cond, string(r.Severity), r.Enabled, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

const ruleColumns = `id, user_id, name, type, target_url, condition, severity, enabled, created_at`

func scanRule(row scanner) (*models.AlertRule, error) {
	var (
		r             models.AlertRule
		typ, severity string
		cond          []byte
	)
	if err := row.Scan(&r.ID, &r.UserID, &r.Name, &typ, &r.TargetURL, &cond, &severity, &r.Enabled, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Type = models.AlertType(typ)
	r.Severity = models.Severity(severity)
	r.Condition = json.RawMessage(cond)
	return &r, nil
}

func (p *Postgres) GetRule(ctx context.Context, id string) (*models.AlertRule, error) {
	r, err := scanRule(p.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func (p *Postgres) ListRules(ctx context.Context, userID string) ([]models.AlertRule, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM alert_rules
		WHERE $1 = '' OR user_id = $1
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []models.AlertRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Schedules

func (p *Postgres) SaveSchedule(ctx context.Context, s *models.MonitoringSchedule) error {
	cfg, err := jsonArg(s.Config)
	if err != nil {
		return fmt.Errorf("failed to encode schedule config: %w", err)
	}
	status := s.LastRunStatus
	if status == "" {
		status = models.RunPending
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO monitoring_schedules (id, user_id, name, type, cron_expression, config, enabled,
			last_run_at, last_run_status, last_error, consecutive_failures, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type, cron_expression = EXCLUDED.cron_expression,
			config = EXCLUDED.config, enabled = EXCLUDED.enabled`,
		s.ID, s.UserID, s.Name, string(s.Type), s.CronExpression, cfg, s.Enabled,
		s.LastRunAt, string(status), s.LastError, s.ConsecutiveFailures, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

const scheduleColumns = `id, user_id, name, type, cron_expression, config, enabled,
	last_run_at, last_run_status, last_error, consecutive_failures, created_at`

func scanSchedule(row scanner) (*models.MonitoringSchedule, error) {
	var (
		s           models.MonitoringSchedule
		typ, status string
		cfg         []byte
		lastRunAt   sql.NullTime
	)
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &typ, &s.CronExpression, &cfg, &s.Enabled,
		&lastRunAt, &status, &s.LastError, &s.ConsecutiveFailures, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.Type = models.ScheduleType(typ)
	s.LastRunStatus = models.RunStatus(status)
	s.LastRunAt = timePtr(lastRunAt)
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &s.Config); err != nil {
			return nil, fmt.Errorf("failed to decode schedule config: %w", err)
		}
	}
	return &s, nil
}

func (p *Postgres) GetSchedule(ctx context.Context, id string) (*models.MonitoringSchedule, error) {
	s, err := scanSchedule(p.db.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM monitoring_schedules WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (p *Postgres) ListSchedules(ctx context.Context) ([]models.MonitoringSchedule, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM monitoring_schedules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var out []models.MonitoringSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *Postgres) SetScheduleEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := p.db.ExecContext(ctx, `UPDATE monitoring_schedules SET enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) RecordRun(ctx context.Context, id string, at time.Time, status models.RunStatus, runErr string) (*models.MonitoringSchedule, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE monitoring_schedules SET
			last_run_at = $1,
			last_run_status = $2,
			last_error = $3,
			consecutive_failures = CASE WHEN $2 = 'failed' THEN consecutive_failures + 1 ELSE 0 END
		WHERE id = $4
		RETURNING `+scheduleColumns, at, string(status), runErr, id)
	s, err := scanSchedule(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// Preferences

func (p *Postgres) GetPreferences(ctx context.Context, userID string) (*models.NotificationPreferences, error) {
	var (
		prefs models.NotificationPreferences
		types []byte
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT user_id, email_enabled, address, immediate_alerts, daily_digest, weekly_digest, alert_types
		FROM notification_preferences WHERE user_id = $1`, userID).
		Scan(&prefs.UserID, &prefs.EmailEnabled, &prefs.Address, &prefs.ImmediateAlerts,
			&prefs.DailyDigest, &prefs.WeeklyDigest, &types)
	if err != nil {
		return nil, notFound(err)
	}
	if len(types) > 0 {
		if err := json.Unmarshal(types, &prefs.AlertTypes); err != nil {
			return nil, fmt.Errorf("failed to decode alert types: %w", err)
		}
	}
	return &prefs, nil
}

func (p *Postgres) SavePreferences(ctx context.Context, prefs *models.NotificationPreferences) error {
	types, err := jsonArg(prefs.AlertTypes)
	if err != nil {
		return fmt.Errorf("failed to encode alert types: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO notification_preferences (user_id, email_enabled, address, immediate_alerts, daily_digest, weekly_digest, alert_types)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled, address = EXCLUDED.address,
			immediate_alerts = EXCLUDED.immediate_alerts, daily_digest = EXCLUDED.daily_digest,
			weekly_digest = EXCLUDED.weekly_digest, alert_types = EXCLUDED.alert_types`,
		prefs.UserID, prefs.EmailEnabled, prefs.Address, prefs.ImmediateAlerts, prefs.DailyDigest, prefs.WeeklyDigest, types)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// Keywords

func (p *Postgres) UpsertKeyword(ctx context.Context, k *models.Keyword) error {
	var metrics sql.NullString
	if k.ExternalMetrics != nil {
		m, err := jsonArg(k.ExternalMetrics)
		if err != nil {
			return fmt.Errorf("failed to encode keyword metrics: %w", err)
		}
		metrics = sql.NullString{String: m, Valid: true}
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO keywords (target_url, keyword, position, previous_position, volume, difficulty, trend, external_metrics, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (target_url, keyword) DO UPDATE SET
			position = EXCLUDED.position, previous_position = EXCLUDED.previous_position,
			volume = EXCLUDED.volume, difficulty = EXCLUDED.difficulty, trend = EXCLUDED.trend,
			external_metrics = EXCLUDED.external_metrics, updated_at = EXCLUDED.updated_at`,
		k.TargetURL, k.Keyword, k.Position, k.PreviousPosition, k.Volume, k.Difficulty, string(k.Trend), metrics, k.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert keyword: %w", err)
	}
	return nil
}

const keywordColumns = `target_url, keyword, position, previous_position, volume, difficulty, trend, external_metrics, updated_at`

func scanKeyword(row scanner) (*models.Keyword, error) {
	var (
		k       models.Keyword
		trend   string
		metrics []byte
	)
	err := row.Scan(&k.TargetURL, &k.Keyword, &k.Position, &k.PreviousPosition, &k.Volume, &k.Difficulty, &trend, &metrics, &k.UpdatedAt)
	if err != nil {
		return nil, err
	}
	k.Trend = models.Trend(trend)
	if len(metrics) > 0 {
		k.ExternalMetrics = &models.ExternalMetrics{}
		if err := json.Unmarshal(metrics, k.ExternalMetrics); err != nil {
			return nil, fmt.Errorf("failed to decode keyword metrics: %w", err)
		}
	}
	return &k, nil
}

func (p *Postgres) GetKeyword(ctx context.Context, targetURL, keyword string) (*models.Keyword, error) {
	k, err := scanKeyword(p.db.QueryRowContext(ctx,
		`SELECT `+keywordColumns+` FROM keywords WHERE target_url = $1 AND keyword = $2`, targetURL, keyword))
	if err != nil {
		return nil, notFound(err)
	}
	return k, nil
}

func (p *Postgres) ListKeywords(ctx context.Context, targetURL string) ([]models.Keyword, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+keywordColumns+` FROM keywords WHERE target_url = $1 ORDER BY keyword`, targetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	defer rows.Close()

	var out []models.Keyword
	for rows.Next() {
		k, err := scanKeyword(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan keyword: %w", err)
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

func (p *Postgres) AppendObservation(ctx context.Context, o models.KeywordObservation) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO keyword_observations (target_url, keyword, position, trend, observed_at)
		VALUES ($1, $2, $3, $4, $5)`, o.TargetURL, o.Keyword, o.Position, string(o.Trend), o.ObservedAt)
	if err != nil {
		return fmt.Errorf("failed to append observation: %w", err)
	}
	return nil
}

func (p *Postgres) Observations(ctx context.Context, targetURL, keyword string, since time.Time) ([]models.KeywordObservation, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT target_url, keyword, position, trend, observed_at FROM keyword_observations
		WHERE target_url = $1 AND keyword = $2 AND observed_at >= $3
		ORDER BY observed_at`, targetURL, keyword, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var out []models.KeywordObservation
	for rows.Next() {
		var (
			o     models.KeywordObservation
			trend string
		)
		if err := rows.Scan(&o.TargetURL, &o.Keyword, &o.Position, &trend, &o.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		o.Trend = models.Trend(trend)
		out = append(out, o)
	}
	return out, rows.Err()
}

// Credentials

func (p *Postgres) SaveCredential(ctx context.Context, c *models.Credential) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO provider_credentials (user_id, provider, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN provider_credentials.refresh_token ELSE EXCLUDED.refresh_token END,
			token_type = EXCLUDED.token_type, expiry = EXCLUDED.expiry, updated_at = EXCLUDED.updated_at`,
		c.UserID, c.Provider, c.AccessToken, c.RefreshToken, c.TokenType, nullTime(c.Expiry), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (p *Postgres) GetCredential(ctx context.Context, userID, provider string) (*models.Credential, error) {
	var (
		c      models.Credential
		expiry sql.NullTime
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT user_id, provider, access_token, refresh_token, token_type, expiry, updated_at
		FROM provider_credentials WHERE user_id = $1 AND provider = $2`, userID, provider).
		Scan(&c.UserID, &c.Provider, &c.AccessToken, &c.RefreshToken, &c.TokenType, &expiry, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if expiry.Valid {
		c.Expiry = expiry.Time
	}
	return &c, nil
}

var _ Store = (*Postgres)(nil)
