package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

// ErrMalformedCondition is wrapped by RuleErrors for conditions that fail
// to decode or validate
var ErrMalformedCondition = errors.New("malformed rule condition")

// Rollout limits a rule to a stable percentage of (user, rule) buckets.
// A nil percentage applies the rule everywhere.
type Rollout struct {
	RolloutPercent *int `json:"rollout_percent,omitempty"`
}

func (r Rollout) validate() error {
	if r.RolloutPercent != nil && (*r.RolloutPercent < 0 || *r.RolloutPercent > 100) {
		return fmt.Errorf("rollout_percent must be within 0-100, got %d", *r.RolloutPercent)
	}
	return nil
}

// ScoreDropCondition fires when a score falls by at least ThresholdPoints
// relative to the most recent record within WindowHours
type ScoreDropCondition struct {
	Rollout
	ThresholdPoints int    `json:"threshold_points"`
	WindowHours     int    `json:"window_hours"`
	Category        string `json:"category,omitempty"`
}

var scoreCategories = map[string]bool{
	"overall":       true,
	"technical":     true,
	"on_page":       true,
	"performance":   true,
	"mobile":        true,
	"accessibility": true,
}

func (c *ScoreDropCondition) validate() error {
	if c.Category == "" {
		c.Category = "overall"
	}
	switch {
	case c.ThresholdPoints <= 0:
		return fmt.Errorf("threshold_points must be positive")
	case c.WindowHours <= 0:
		return fmt.Errorf("window_hours must be positive")
	case !scoreCategories[c.Category]:
		return fmt.Errorf("unknown score category %q", c.Category)
	}
	return c.Rollout.validate()
}

// KeywordChangeCondition fires on a position jump of at least
// ThresholdPositions or on a trend that flaps within WindowHours
type KeywordChangeCondition struct {
	Rollout
	ThresholdPositions int `json:"threshold_positions"`
	WindowHours        int `json:"window_hours"`
}

func (c *KeywordChangeCondition) validate() error {
	switch {
	case c.ThresholdPositions <= 0:
		return fmt.Errorf("threshold_positions must be positive")
	case c.WindowHours <= 0:
		return fmt.Errorf("window_hours must be positive")
	}
	return c.Rollout.validate()
}

// FailureCondition fires once a source or job has failed
// ConsecutiveFailures times in a row. Zero means every failure.
type FailureCondition struct {
	Rollout
	ConsecutiveFailures int `json:"consecutive_failures"`
}

func (c *FailureCondition) validate() error {
	if c.ConsecutiveFailures < 0 {
		return fmt.Errorf("consecutive_failures must not be negative")
	}
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 1
	}
	return c.Rollout.validate()
}

type validator interface {
	validate() error
}

// decode strictly decodes raw into c and validates it. Unknown fields are
// rejected so that typos do not silently disable a threshold.
func decode(raw json.RawMessage, c validator) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedCondition, err)
	}
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedCondition, err)
	}
	return nil
}

// Validate decodes the condition of rule against its type
func Validate(rule models.AlertRule) error {
	var c validator
	switch rule.Type {
	case models.AlertScoreDrop:
		c = &ScoreDropCondition{}
	case models.AlertKeywordChange:
		c = &KeywordChangeCondition{}
	case models.AlertExternalSourceIssue, models.AlertPerformanceIssue:
		c = &FailureCondition{}
	default:
		return fmt.Errorf("%w: unknown rule type %q", ErrMalformedCondition, rule.Type)
	}
	return decode(rule.Condition, c)
}

// Lookback returns how far back audit history must reach for the enabled
// score-drop rules in rs. Malformed rules are ignored here; Evaluate
// reports them.
func Lookback(rs []models.AlertRule) time.Duration {
	var longest time.Duration
	for i := range rs {
		if !rs[i].Enabled || rs[i].Type != models.AlertScoreDrop {
			continue
		}
		var c ScoreDropCondition
		if decode(rs[i].Condition, &c) != nil {
			continue
		}
		if d := time.Duration(c.WindowHours) * time.Hour; d > longest {
			longest = d
		}
	}
	return longest
}
