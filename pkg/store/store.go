// Package store persists audits, alerts, rules, schedules, preferences,
// keywords and provider credentials.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("store: not found")

// AuditStore persists audit records
type AuditStore interface {
	SaveAudit(ctx context.Context, rec *models.AuditRecord) error
	GetAudit(ctx context.Context, id string) (*models.AuditRecord, error)
	// AuditHistory returns records for targetURL taken at or after since,
	// newest first.
	AuditHistory(ctx context.Context, targetURL string, since time.Time) ([]models.AuditRecord, error)
}

// AlertFilter narrows ListAlerts. Zero fields match everything.
type AlertFilter struct {
	UserID string
	Status models.AlertStatus
	Since  time.Time
	Until  time.Time
}

// AlertStore persists alerts
type AlertStore interface {
	// InsertAlertIfAbsent stores a unless an Active alert with the same rule
	// and subject exists. It reports whether a was inserted.
	InsertAlertIfAbsent(ctx context.Context, a *models.Alert) (bool, error)
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	// TransitionAlert moves alert id from status from to status to. It
	// reports false when the alert is no longer in status from.
	TransitionAlert(ctx context.Context, id string, from, to models.AlertStatus, actor string, at time.Time) (bool, error)
	// ListAlerts returns matching alerts, newest first
	ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error)
}

// RuleStore persists alert rules
type RuleStore interface {
	SaveRule(ctx context.Context, r *models.AlertRule) error
	GetRule(ctx context.Context, id string) (*models.AlertRule, error)
	// ListRules returns the rules of userID, or every rule when userID is
	// empty, ordered by creation time.
	ListRules(ctx context.Context, userID string) ([]models.AlertRule, error)
}

// ScheduleStore persists monitoring schedules
type ScheduleStore interface {
	SaveSchedule(ctx context.Context, s *models.MonitoringSchedule) error
	GetSchedule(ctx context.Context, id string) (*models.MonitoringSchedule, error)
	ListSchedules(ctx context.Context) ([]models.MonitoringSchedule, error)
	SetScheduleEnabled(ctx context.Context, id string, enabled bool) error
	// RecordRun stores the outcome of a run. A failure increments the
	// consecutive failure count; a success resets it. Enabled is untouched.
	RecordRun(ctx context.Context, id string, at time.Time, status models.RunStatus, runErr string) (*models.MonitoringSchedule, error)
}

// PreferenceStore persists notification preferences
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID string) (*models.NotificationPreferences, error)
	SavePreferences(ctx context.Context, p *models.NotificationPreferences) error
}

// KeywordStore persists tracked keywords and their position history
type KeywordStore interface {
	UpsertKeyword(ctx context.Context, k *models.Keyword) error
	GetKeyword(ctx context.Context, targetURL, keyword string) (*models.Keyword, error)
	ListKeywords(ctx context.Context, targetURL string) ([]models.Keyword, error)
	AppendObservation(ctx context.Context, o models.KeywordObservation) error
	// Observations returns the history of one keyword since the given time,
	// oldest first.
	Observations(ctx context.Context, targetURL, keyword string, since time.Time) ([]models.KeywordObservation, error)
}

// CredentialStore persists provider tokens
type CredentialStore interface {
	SaveCredential(ctx context.Context, c *models.Credential) error
	GetCredential(ctx context.Context, userID, provider string) (*models.Credential, error)
}

// Store groups every persistence concern
type Store interface {
	AuditStore
	AlertStore
	RuleStore
	ScheduleStore
	PreferenceStore
	KeywordStore
	CredentialStore
	Close() error
}

func (f AlertFilter) match(a *models.Alert) bool {
	if f.UserID != "" && a.UserID != f.UserID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && a.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !a.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}
