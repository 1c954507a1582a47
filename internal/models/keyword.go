package models

import "time"

// Trend is the direction of a keyword's ranking since the previous sync
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// ExternalMetrics are search-analytics numbers pulled from the ranking provider
type ExternalMetrics struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	CTR         float64 `json:"ctr"`
}

// Keyword is a tracked search term for a target URL.
// Position and Trend are recomputed on every sync.
type Keyword struct {
	Keyword          string           `json:"keyword"`
	TargetURL        string           `json:"target_url"`
	Position         int              `json:"position"`
	PreviousPosition int              `json:"previous_position"`
	Volume           int              `json:"volume"`
	Difficulty       int              `json:"difficulty"`
	Trend            Trend            `json:"trend"`
	ExternalMetrics  *ExternalMetrics `json:"external_metrics,omitempty"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// KeywordObservation is one historical position sample for a keyword
type KeywordObservation struct {
	Keyword    string    `json:"keyword"`
	TargetURL  string    `json:"target_url"`
	Position   int       `json:"position"`
	Trend      Trend     `json:"trend"`
	ObservedAt time.Time `json:"observed_at"`
}

// TrendBetween derives the trend of moving from oldPos to newPos.
// Lower positions rank better, so a decreasing position is an upward trend.
func TrendBetween(oldPos, newPos int) Trend {
	switch {
	case oldPos == 0 || newPos == oldPos:
		return TrendStable
	case newPos < oldPos:
		return TrendUp
	default:
		return TrendDown
	}
}
