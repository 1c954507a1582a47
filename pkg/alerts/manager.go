// Package alerts owns the alert lifecycle: persisting candidates with
// deduplication, acknowledgement and dismissal, immediate notification and
// periodic digests.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/metrics"
	"github.com/amosWeiskopf/seowatch/pkg/notify"
	"github.com/amosWeiskopf/seowatch/pkg/store"
)

var (
	// ErrNotFound is returned for an unknown alert id
	ErrNotFound = errors.New("alert not found")
	// ErrInvalidState is returned for a transition the alert's status does
	// not allow
	ErrInvalidState = errors.New("invalid alert state transition")
)

// Manager applies lifecycle transitions and notification policy
type Manager struct {
	alerts     store.AlertStore
	prefs      store.PreferenceStore
	dispatcher notify.Dispatcher
	metrics    *metrics.Metrics
	logger     logging.Logger
	now        func() time.Time
}

// Option customises a Manager
type Option func(*Manager)

// WithMetrics records lifecycle events
func WithMetrics(m *metrics.Metrics) Option {
	return func(mg *Manager) { mg.metrics = m }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(mg *Manager) { mg.now = now }
}

// NewManager creates a Manager
func NewManager(alerts store.AlertStore, prefs store.PreferenceStore, dispatcher notify.Dispatcher, logger logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		alerts:     alerts,
		prefs:      prefs,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Raise persists alert candidates. A candidate is dropped when an Active
// alert already covers its (rule, subject) pair. Newly created alerts are
// returned and dispatched immediately when the owner's preferences ask for it.
func (m *Manager) Raise(ctx context.Context, candidates []models.Alert) ([]models.Alert, error) {
	var (
		created []models.Alert
		errs    []error
	)
	for _, c := range candidates {
		a := c
		a.ID = uuid.NewString()
		a.Status = models.AlertActive
		if a.CreatedAt.IsZero() {
			a.CreatedAt = m.now()
		}
		a.AcknowledgedAt, a.AcknowledgedBy, a.DismissedAt = nil, "", nil

		inserted, err := m.alerts.InsertAlertIfAbsent(ctx, &a)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s subject %s: %w", a.RuleID, a.SubjectKey, err))
			continue
		}
		if !inserted {
			m.metrics.AlertDeduplicated(string(a.Type))
			m.logger.WithFields(logging.Fields{
				"rule_id": a.RuleID,
				"subject": a.SubjectKey,
			}).Debug("Active alert already exists, skipping")
			continue
		}

		m.metrics.AlertRaised(string(a.Type), string(a.Severity))
		m.logger.WithFields(logging.Fields{
			"alert_id": a.ID,
			"rule_id":  a.RuleID,
			"subject":  a.SubjectKey,
			"severity": a.Severity,
		}).Info("Alert raised")

		m.dispatchImmediate(ctx, a)
		created = append(created, a)
	}
	return created, errors.Join(errs...)
}

// dispatchImmediate sends a single-alert notification if the owner wants
// one. Failures are logged and not retried.
func (m *Manager) dispatchImmediate(ctx context.Context, a models.Alert) {
	prefs, err := m.Preferences(ctx, a.UserID)
	if err != nil {
		m.logger.WithError(err).WithField("user_id", a.UserID).Warn("Failed to load notification preferences")
		return
	}
	if !prefs.EmailEnabled || !prefs.ImmediateAlerts || !prefs.Wants(a.Type) || prefs.Address == "" {
		return
	}

	err = m.dispatcher.Dispatch(ctx, prefs.Address, notify.KindImmediate, notify.Payload{
		UserID:      a.UserID,
		Alerts:      []models.Alert{a},
		GeneratedAt: m.now(),
	})
	m.metrics.Notification(string(notify.KindImmediate), err)
	if err != nil {
		m.logger.WithError(err).WithFields(logging.Fields{
			"alert_id": a.ID,
			"user_id":  a.UserID,
		}).Warn("Failed to dispatch alert notification")
	}
}

// Acknowledge moves an Active alert to Acknowledged, recording the actor
func (m *Manager) Acknowledge(ctx context.Context, id, actor string) (*models.Alert, error) {
	return m.transition(ctx, id, actor, models.AlertAcknowledged)
}

// Dismiss moves an Active or Acknowledged alert to Dismissed. Dismissed
// alerts are never reopened.
func (m *Manager) Dismiss(ctx context.Context, id, actor string) (*models.Alert, error) {
	return m.transition(ctx, id, actor, models.AlertDismissed)
}

func allowed(from, to models.AlertStatus) bool {
	switch to {
	case models.AlertAcknowledged:
		return from == models.AlertActive
	case models.AlertDismissed:
		return from == models.AlertActive || from == models.AlertAcknowledged
	default:
		return false
	}
}

// transition re-reads the alert whenever the compare-and-set loses a race
// so that a concurrent acknowledge does not block a dismiss.
func (m *Manager) transition(ctx context.Context, id, actor string, to models.AlertStatus) (*models.Alert, error) {
	for attempt := 0; attempt < 3; attempt++ {
		a, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if !allowed(a.Status, to) {
			return nil, fmt.Errorf("%w: %s to %s", ErrInvalidState, a.Status, to)
		}

		moved, err := m.alerts.TransitionAlert(ctx, id, a.Status, to, actor, m.now())
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update alert: %w", err)
		}
		if !moved {
			continue
		}

		m.metrics.AlertTransitioned(string(to))
		m.logger.WithFields(logging.Fields{
			"alert_id": id,
			"from":     a.Status,
			"to":       to,
			"actor":    actor,
		}).Info("Alert transitioned")
		return m.Get(ctx, id)
	}
	return nil, fmt.Errorf("%w: alert %s changed concurrently", ErrInvalidState, id)
}

// Get returns one alert
func (m *Manager) Get(ctx context.Context, id string) (*models.Alert, error) {
	a, err := m.alerts.GetAlert(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	return a, nil
}

// List returns alerts matching f, newest first
func (m *Manager) List(ctx context.Context, f store.AlertFilter) ([]models.Alert, error) {
	return m.alerts.ListAlerts(ctx, f)
}

// Preferences returns the user's notification preferences, creating the
// default record on first access
func (m *Manager) Preferences(ctx context.Context, userID string) (*models.NotificationPreferences, error) {
	p, err := m.prefs.GetPreferences(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	defaults := models.DefaultPreferences(userID)
	if err := m.prefs.SavePreferences(ctx, &defaults); err != nil {
		return nil, fmt.Errorf("failed to create default preferences: %w", err)
	}
	return &defaults, nil
}

// UpdatePreferences replaces the user's preferences
func (m *Manager) UpdatePreferences(ctx context.Context, p *models.NotificationPreferences) error {
	if p.UserID == "" {
		return fmt.Errorf("preferences need a user id")
	}
	return m.prefs.SavePreferences(ctx, p)
}
