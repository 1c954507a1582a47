package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/notify"
	"github.com/amosWeiskopf/seowatch/pkg/store"
)

// Period is a digest window
type Period string

const (
	Daily  Period = "daily"
	Weekly Period = "weekly"
)

// ParsePeriod parses "daily" or "weekly"
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case Daily, Weekly:
		return Period(s), nil
	default:
		return "", fmt.Errorf("unknown digest period %q", s)
	}
}

func (p Period) window() time.Duration {
	if p == Weekly {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

func (p Period) kind() notify.Kind {
	if p == Weekly {
		return notify.KindWeeklyDigest
	}
	return notify.KindDailyDigest
}

// SendDigest mails the user every alert created in the period ending at
// now, regardless of its current status. It reports how many alerts the
// digest carried; nothing is sent when the user opted out or the window
// holds no alerts.
func (m *Manager) SendDigest(ctx context.Context, userID string, period Period, now time.Time) (int, error) {
	prefs, err := m.Preferences(ctx, userID)
	if err != nil {
		return 0, err
	}
	wanted := (period == Daily && prefs.DailyDigest) || (period == Weekly && prefs.WeeklyDigest)
	if !prefs.EmailEnabled || !wanted || prefs.Address == "" {
		return 0, nil
	}

	start := now.Add(-period.window())
	all, err := m.alerts.ListAlerts(ctx, store.AlertFilter{UserID: userID, Since: start, Until: now})
	if err != nil {
		return 0, fmt.Errorf("failed to list alerts: %w", err)
	}

	var included []models.Alert
	for _, a := range all {
		if prefs.Wants(a.Type) {
			included = append(included, a)
		}
	}
	if len(included) == 0 {
		return 0, nil
	}

	err = m.dispatcher.Dispatch(ctx, prefs.Address, period.kind(), notify.Payload{
		UserID:      userID,
		Alerts:      included,
		PeriodStart: start,
		PeriodEnd:   now,
		GeneratedAt: m.now(),
	})
	m.metrics.Notification(string(period.kind()), err)
	if err != nil {
		m.logger.WithError(err).WithFields(logging.Fields{
			"user_id": userID,
			"period":  period,
		}).Warn("Failed to dispatch digest")
		return 0, fmt.Errorf("failed to dispatch digest: %w", err)
	}
	return len(included), nil
}
