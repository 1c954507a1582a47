package models

// NotificationPreferences controls alert delivery for one user
type NotificationPreferences struct {
	UserID          string             `json:"user_id"`
	EmailEnabled    bool               `json:"email_enabled"`
	Address         string             `json:"address"`
	ImmediateAlerts bool               `json:"immediate_alerts"`
	DailyDigest     bool               `json:"daily_digest"`
	WeeklyDigest    bool               `json:"weekly_digest"`
	AlertTypes      map[AlertType]bool `json:"alert_types"`
}

// DefaultPreferences returns the record created on first access
func DefaultPreferences(userID string) NotificationPreferences {
	types := make(map[AlertType]bool, len(AlertTypes))
	for _, t := range AlertTypes {
		types[t] = true
	}
	return NotificationPreferences{
		UserID:          userID,
		EmailEnabled:    true,
		ImmediateAlerts: true,
		WeeklyDigest:    true,
		AlertTypes:      types,
	}
}

// Wants reports whether alerts of type t are enabled.
// Types missing from the toggle map default to enabled.
func (p NotificationPreferences) Wants(t AlertType) bool {
	on, ok := p.AlertTypes[t]
	return !ok || on
}
