// Package notify delivers alert notifications and digests out of band.
package notify

import (
	"context"
	"time"

	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/internal/models"
)

// Kind selects the message template
type Kind string

const (
	KindImmediate    Kind = "immediate_alert"
	KindDailyDigest  Kind = "daily_digest"
	KindWeeklyDigest Kind = "weekly_digest"
)

// Payload is the data rendered into a notification
type Payload struct {
	UserID      string
	Alerts      []models.Alert
	PeriodStart time.Time
	PeriodEnd   time.Time
	GeneratedAt time.Time
}

// Dispatcher delivers a notification. Callers log failures; dispatchers do
// not retry.
type Dispatcher interface {
	Dispatch(ctx context.Context, address string, kind Kind, payload Payload) error
}

// LogDispatcher writes notifications to the log instead of delivering them.
// It is used when no SMTP host is configured.
type LogDispatcher struct {
	Logger logging.Logger
}

// Dispatch logs the notification
func (d LogDispatcher) Dispatch(_ context.Context, address string, kind Kind, payload Payload) error {
	d.Logger.WithFields(logging.Fields{
		"address": address,
		"kind":    kind,
		"user_id": payload.UserID,
		"alerts":  len(payload.Alerts),
	}).Info("Notification (not delivered: SMTP not configured)")
	return nil
}
