package models

import "time"

// ScheduleType selects the job a schedule triggers
type ScheduleType string

const (
	ScheduleAudit        ScheduleType = "audit"
	ScheduleKeywordSync  ScheduleType = "keyword_sync"
	ScheduleDailyDigest  ScheduleType = "daily_digest"
	ScheduleWeeklyDigest ScheduleType = "weekly_digest"
)

// RunStatus is the outcome of the last run of a schedule
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// MonitoringSchedule is a cron-driven job definition
type MonitoringSchedule struct {
	ID                  string            `json:"id"`
	UserID              string            `json:"user_id"`
	Name                string            `json:"name"`
	Type                ScheduleType      `json:"type"`
	CronExpression      string            `json:"cron_expression"`
	Config              map[string]string `json:"config,omitempty"`
	Enabled             bool              `json:"enabled"`
	LastRunAt           *time.Time        `json:"last_run_at,omitempty"`
	LastRunStatus       RunStatus         `json:"last_run_status"`
	LastError           string            `json:"last_error,omitempty"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	CreatedAt           time.Time         `json:"created_at"`
}

// Schedule config keys
const (
	ConfigTargetURL = "target_url"
	ConfigProperty  = "property"
)
