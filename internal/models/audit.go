package models

import "time"

// TriggeredBy records what started an audit run
type TriggeredBy string

const (
	TriggeredManual    TriggeredBy = "manual"
	TriggeredScheduled TriggeredBy = "scheduled"
)

// CategoryScores holds the 0-100 score of each scored category.
// Overall is derived from the other fields by the scoring package.
type CategoryScores struct {
	Technical     int `json:"technical"`
	OnPage        int `json:"on_page"`
	Performance   int `json:"performance"`
	Mobile        int `json:"mobile"`
	Accessibility int `json:"accessibility"`
	Overall       int `json:"overall"`
}

// Totals counts findings by status
type Totals struct {
	Checked int `json:"checked"`
	Passed  int `json:"passed"`
	Warned  int `json:"warned"`
	Failed  int `json:"failed"`
}

// AuditRecord is the immutable result of one audit run
type AuditRecord struct {
	ID          string         `json:"id"`
	TargetURL   string         `json:"target_url"`
	TriggeredBy TriggeredBy    `json:"triggered_by"`
	Timestamp   time.Time      `json:"timestamp"`
	Findings    []Finding      `json:"findings"`
	Scores      CategoryScores `json:"scores"`
	Totals      Totals         `json:"totals"`
}

// CountTotals tallies findings by status
func CountTotals(findings []Finding) Totals {
	t := Totals{Checked: len(findings)}
	for _, f := range findings {
		switch f.Status {
		case StatusPassed:
			t.Passed++
		case StatusWarning:
			t.Warned++
		case StatusFailed:
			t.Failed++
		}
	}
	return t
}
