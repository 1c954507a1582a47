// Package rules evaluates alert rules against new audit records, keyword
// history and failure signals, producing alert candidates.
package rules

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/metrics"
)

// SignalKind classifies failure signals fed into evaluation
type SignalKind string

const (
	// SignalSourceError is an error reported by an external data source
	SignalSourceError SignalKind = "source_error"
	// SignalJobFailure is a failed scheduled job run
	SignalJobFailure SignalKind = "job_failure"
)

// Signal is an explicit failure observation from the sync job or scheduler
type Signal struct {
	Kind                SignalKind
	Source              string // provider name or schedule id
	ScheduleType        models.ScheduleType
	TargetURL           string
	Message             string
	ConsecutiveFailures int
	At                  time.Time
}

// KeywordSeries is a tracked keyword with its recent observations
type KeywordSeries struct {
	Keyword      models.Keyword
	Observations []models.KeywordObservation
}

// Input is everything one evaluation pass can look at. Any part may be
// empty; rules with nothing to evaluate produce no candidates.
type Input struct {
	Record   *models.AuditRecord
	History  []models.AuditRecord
	Keywords []KeywordSeries
	Signals  []Signal
	Now      time.Time
}

// RuleError reports a rule that was skipped during evaluation
type RuleError struct {
	RuleID string
	Type   models.AlertType
	Err    error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("rule %s (%s): %v", e.RuleID, e.Type, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// Engine evaluates rules. It holds no state between evaluations.
type Engine struct {
	logger  logging.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an Engine
func NewEngine(logger logging.Logger, m *metrics.Metrics) *Engine {
	return &Engine{logger: logger, metrics: m}
}

// Evaluate runs every enabled rule against in. A rule whose condition is
// malformed is skipped and reported in the returned errors; the remaining
// rules still run. Candidates are Active alerts without an ID.
func (e *Engine) Evaluate(in Input, rules []models.AlertRule) ([]models.Alert, []error) {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	var (
		candidates []models.Alert
		errs       []error
	)
	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled {
			continue
		}

		alerts, err := e.evaluateRule(rule, in)
		if err != nil {
			rerr := &RuleError{RuleID: rule.ID, Type: rule.Type, Err: err}
			e.metrics.RuleError(string(rule.Type))
			e.logger.WithFields(logging.Fields{
				"rule_id":   rule.ID,
				"rule_type": rule.Type,
			}).WithError(err).Warn("Skipping alert rule")
			errs = append(errs, rerr)
			continue
		}
		candidates = append(candidates, alerts...)
	}
	return candidates, errs
}

func (e *Engine) evaluateRule(rule *models.AlertRule, in Input) (alerts []models.Alert, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			alerts, err = nil, fmt.Errorf("rule evaluation panicked: %v", rec)
		}
	}()

	switch rule.Type {
	case models.AlertScoreDrop:
		var c ScoreDropCondition
		if err := decode(rule.Condition, &c); err != nil {
			return nil, err
		}
		if !applies(rule, c.Rollout) {
			return nil, nil
		}
		return scoreDrop(rule, c, in), nil

	case models.AlertKeywordChange:
		var c KeywordChangeCondition
		if err := decode(rule.Condition, &c); err != nil {
			return nil, err
		}
		if !applies(rule, c.Rollout) {
			return nil, nil
		}
		return keywordChange(rule, c, in), nil

	case models.AlertExternalSourceIssue:
		var c FailureCondition
		if err := decode(rule.Condition, &c); err != nil {
			return nil, err
		}
		if !applies(rule, c.Rollout) {
			return nil, nil
		}
		return externalSource(rule, c, in), nil

	case models.AlertPerformanceIssue:
		var c FailureCondition
		if err := decode(rule.Condition, &c); err != nil {
			return nil, err
		}
		if !applies(rule, c.Rollout) {
			return nil, nil
		}
		return performance(rule, c, in), nil

	default:
		return nil, fmt.Errorf("%w: unknown rule type %q", ErrMalformedCondition, rule.Type)
	}
}

func applies(rule *models.AlertRule, r Rollout) bool {
	if r.RolloutPercent == nil {
		return true
	}
	return InRollout(rule.UserID, rule.ID, *r.RolloutPercent)
}

func matchesTarget(rule *models.AlertRule, target string) bool {
	return rule.TargetURL == "" || target == "" || rule.TargetURL == target
}

func candidate(rule *models.AlertRule, target, subject string, severity models.Severity, title, message string, details map[string]string, now time.Time) models.Alert {
	return models.Alert{
		RuleID:     rule.ID,
		UserID:     rule.UserID,
		Type:       rule.Type,
		TargetURL:  target,
		SubjectKey: subject,
		Severity:   severity,
		Title:      title,
		Message:    message,
		Details:    details,
		Status:     models.AlertActive,
		CreatedAt:  now,
	}
}

func categoryScore(s models.CategoryScores, category string) int {
	switch category {
	case "technical":
		return s.Technical
	case "on_page":
		return s.OnPage
	case "performance":
		return s.Performance
	case "mobile":
		return s.Mobile
	case "accessibility":
		return s.Accessibility
	default:
		return s.Overall
	}
}

// baseline returns the most recent record for the same target taken before
// rec and no earlier than window before it
func baseline(rec *models.AuditRecord, history []models.AuditRecord, window time.Duration) *models.AuditRecord {
	earliest := rec.Timestamp.Add(-window)
	var best *models.AuditRecord
	for i := range history {
		h := &history[i]
		if h.ID == rec.ID || h.TargetURL != rec.TargetURL {
			continue
		}
		if !h.Timestamp.Before(rec.Timestamp) || h.Timestamp.Before(earliest) {
			continue
		}
		if best == nil || h.Timestamp.After(best.Timestamp) {
			best = h
		}
	}
	return best
}

func scoreDrop(rule *models.AlertRule, c ScoreDropCondition, in Input) []models.Alert {
	rec := in.Record
	if rec == nil || !matchesTarget(rule, rec.TargetURL) {
		return nil
	}
	base := baseline(rec, in.History, time.Duration(c.WindowHours)*time.Hour)
	if base == nil {
		return nil
	}

	prev := categoryScore(base.Scores, c.Category)
	curr := categoryScore(rec.Scores, c.Category)
	delta := prev - curr
	if delta < c.ThresholdPoints {
		return nil
	}

	return []models.Alert{candidate(rule, rec.TargetURL, c.Category, rule.Severity,
		fmt.Sprintf("%s score dropped %d points", c.Category, delta),
		fmt.Sprintf("The %s score for %s fell from %d to %d within %dh.", c.Category, rec.TargetURL, prev, curr, c.WindowHours),
		map[string]string{
			"target_url":        rec.TargetURL,
			"category":          c.Category,
			"previous_score":    strconv.Itoa(prev),
			"current_score":     strconv.Itoa(curr),
			"delta":             strconv.Itoa(delta),
			"baseline_audit_id": base.ID,
			"audit_id":          rec.ID,
		}, in.Now)}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// flips counts sign changes between consecutive non-stable trends
func flips(obs []models.KeywordObservation, since time.Time) int {
	sorted := append([]models.KeywordObservation(nil), obs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ObservedAt.Before(sorted[j].ObservedAt) })

	n := 0
	var last models.Trend
	for _, o := range sorted {
		if o.ObservedAt.Before(since) || o.Trend == models.TrendStable || o.Trend == "" {
			continue
		}
		if last != "" && o.Trend != last {
			n++
		}
		last = o.Trend
	}
	return n
}

func keywordChange(rule *models.AlertRule, c KeywordChangeCondition, in Input) []models.Alert {
	var out []models.Alert
	since := in.Now.Add(-time.Duration(c.WindowHours) * time.Hour)

	for _, series := range in.Keywords {
		k := series.Keyword
		if !matchesTarget(rule, k.TargetURL) {
			continue
		}
		details := map[string]string{
			"keyword":           k.Keyword,
			"target_url":        k.TargetURL,
			"position":          strconv.Itoa(k.Position),
			"previous_position": strconv.Itoa(k.PreviousPosition),
		}

		if k.PreviousPosition > 0 && k.Position > 0 && abs(k.Position-k.PreviousPosition) >= c.ThresholdPositions {
			details["change"] = strconv.Itoa(k.PreviousPosition - k.Position)
			out = append(out, candidate(rule, k.TargetURL, k.Keyword, rule.Severity,
				fmt.Sprintf("Keyword %q moved %d positions", k.Keyword, abs(k.Position-k.PreviousPosition)),
				fmt.Sprintf("%q moved from position %d to %d.", k.Keyword, k.PreviousPosition, k.Position),
				details, in.Now))
			continue
		}

		if n := flips(series.Observations, since); n >= 2 {
			details["flips"] = strconv.Itoa(n)
			out = append(out, candidate(rule, k.TargetURL, k.Keyword, rule.Severity.Lower(),
				fmt.Sprintf("Keyword %q ranking is unstable", k.Keyword),
				fmt.Sprintf("%q changed direction %d times in the last %dh.", k.Keyword, n, c.WindowHours),
				details, in.Now))
		}
	}
	return out
}

func externalSource(rule *models.AlertRule, c FailureCondition, in Input) []models.Alert {
	var out []models.Alert
	for _, s := range in.Signals {
		relevant := s.Kind == SignalSourceError ||
			(s.Kind == SignalJobFailure && s.ScheduleType == models.ScheduleKeywordSync)
		if !relevant || !matchesTarget(rule, s.TargetURL) || s.ConsecutiveFailures < c.ConsecutiveFailures {
			continue
		}
		subject := "source:" + s.Source
		if s.Kind == SignalJobFailure {
			subject = "schedule:" + s.Source
		}
		out = append(out, candidate(rule, s.TargetURL, subject, rule.Severity,
			fmt.Sprintf("Data source %s is failing", s.Source),
			fmt.Sprintf("%s failed %d time(s) in a row: %s", s.Source, s.ConsecutiveFailures, s.Message),
			map[string]string{
				"source":               s.Source,
				"consecutive_failures": strconv.Itoa(s.ConsecutiveFailures),
				"error":                s.Message,
			}, in.Now))
	}
	return out
}

func performance(rule *models.AlertRule, c FailureCondition, in Input) []models.Alert {
	var out []models.Alert
	if rec := in.Record; rec != nil && matchesTarget(rule, rec.TargetURL) {
		for _, f := range rec.Findings {
			if f.Category != models.CategoryPerformance || f.Impact != models.ImpactHigh || f.Status != models.StatusFailed {
				continue
			}
			out = append(out, candidate(rule, rec.TargetURL, "performance:"+f.Item, rule.Severity,
				fmt.Sprintf("Performance issue: %s", f.Item),
				f.Message,
				map[string]string{
					"target_url": rec.TargetURL,
					"item":       f.Item,
					"fix":        f.Fix,
					"audit_id":   rec.ID,
				}, in.Now))
		}
	}

	for _, s := range in.Signals {
		if s.Kind != SignalJobFailure || s.ScheduleType == models.ScheduleKeywordSync {
			continue
		}
		if !matchesTarget(rule, s.TargetURL) || s.ConsecutiveFailures < c.ConsecutiveFailures {
			continue
		}
		out = append(out, candidate(rule, s.TargetURL, "schedule:"+s.Source, rule.Severity,
			fmt.Sprintf("Scheduled %s job keeps failing", s.ScheduleType),
			fmt.Sprintf("Schedule %s failed %d time(s) in a row: %s", s.Source, s.ConsecutiveFailures, s.Message),
			map[string]string{
				"schedule_id":          s.Source,
				"schedule_type":        string(s.ScheduleType),
				"consecutive_failures": strconv.Itoa(s.ConsecutiveFailures),
				"error":                s.Message,
			}, in.Now))
	}
	return out
}
