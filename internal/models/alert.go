package models

import (
	"encoding/json"
	"time"
)

// AlertType selects the evaluation logic of a rule
type AlertType string

const (
	AlertScoreDrop           AlertType = "score_drop"
	AlertKeywordChange       AlertType = "keyword_change"
	AlertExternalSourceIssue AlertType = "external_source_issue"
	AlertPerformanceIssue    AlertType = "performance_issue"
)

// AlertTypes lists every alert type
var AlertTypes = []AlertType{
	AlertScoreDrop,
	AlertKeywordChange,
	AlertExternalSourceIssue,
	AlertPerformanceIssue,
}

// Severity of an alert
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Lower returns the next severity tier down. Low stays Low.
func (s Severity) Lower() Severity {
	switch s {
	case SeverityCritical:
		return SeverityHigh
	case SeverityHigh:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Rank orders severities from Low (1) to Critical (4); unknown values rank 0
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AlertStatus is the lifecycle state of an alert
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertDismissed    AlertStatus = "dismissed"
)

// Terminal reports whether no further transition is allowed
func (s AlertStatus) Terminal() bool {
	return s == AlertDismissed
}

// AlertRule is a user-configured condition evaluated after audits and syncs.
// Condition is decoded by the rule type; a condition that fails to decode or
// validate is reported and the rule skipped.
type AlertRule struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Name      string          `json:"name"`
	Type      AlertType       `json:"type"`
	TargetURL string          `json:"target_url,omitempty"`
	Condition json.RawMessage `json:"condition"`
	Severity  Severity        `json:"severity"`
	Enabled   bool            `json:"enabled"`
	CreatedAt time.Time       `json:"created_at"`
}

// Alert is a persisted notification of a detected regression or issue
type Alert struct {
	ID             string            `json:"id"`
	RuleID         string            `json:"rule_id"`
	UserID         string            `json:"user_id"`
	Type           AlertType         `json:"type"`
	TargetURL      string            `json:"target_url,omitempty"`
	SubjectKey     string            `json:"subject_key"`
	Severity       Severity          `json:"severity"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Details        map[string]string `json:"details,omitempty"`
	Status         AlertStatus       `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string            `json:"acknowledged_by,omitempty"`
	DismissedAt    *time.Time        `json:"dismissed_at,omitempty"`
}

// DedupKey identifies the site and subject an alert rule fired for
func (a Alert) DedupKey() string {
	return a.RuleID + "|" + a.TargetURL + "|" + a.SubjectKey
}
