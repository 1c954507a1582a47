package models

import "fmt"

// Category groups findings for scoring
type Category string

const (
	CategoryTechnical   Category = "technical"
	CategoryOnPage      Category = "on_page"
	CategoryPerformance Category = "performance"
	CategoryMobile      Category = "mobile"
	CategorySecurity    Category = "security"
	CategoryContent     Category = "content"
)

// Categories lists every category in report order
var Categories = []Category{
	CategoryTechnical,
	CategoryOnPage,
	CategoryPerformance,
	CategoryMobile,
	CategorySecurity,
	CategoryContent,
}

// Status is the outcome of a single check
type Status string

const (
	StatusPassed  Status = "passed"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
	StatusInfo    Status = "info"
)

// Impact estimates how much a finding matters for ranking
type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// Finding represents one observation produced by an audit check.
// Findings are values and are never modified after a check returns them.
type Finding struct {
	Category Category `json:"category"`
	Item     string   `json:"item"`
	Status   Status   `json:"status"`
	Impact   Impact   `json:"impact"`
	Message  string   `json:"message"`
	Fix      string   `json:"fix,omitempty"`
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s/%s] %s: %s", f.Category, f.Status, f.Item, f.Message)
}
