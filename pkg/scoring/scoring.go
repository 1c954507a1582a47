// Package scoring turns audit findings into 0-100 category scores.
package scoring

import (
	"github.com/amosWeiskopf/seowatch/internal/models"
)

// Weights of each scored category in the overall score, in percent
const (
	WeightTechnical   = 30
	WeightOnPage      = 25
	WeightPerformance = 25
	WeightMobile      = 20
)

type tally struct {
	passed, warned, total int
}

// score returns round-half-up(100 * (passed + 0.5*warned) / total) using
// integer arithmetic. An empty category scores 100.
func (t tally) score() int {
	if t.total == 0 {
		return 100
	}
	return (200*t.passed + 100*t.warned + t.total) / (2 * t.total)
}

// bucket maps a finding category onto the scored category it counts toward.
// It reports false for a category it does not know.
func bucket(c models.Category) (models.Category, bool) {
	switch c {
	case models.CategoryTechnical, models.CategorySecurity:
		return models.CategoryTechnical, true
	case models.CategoryOnPage, models.CategoryContent:
		return models.CategoryOnPage, true
	case models.CategoryPerformance:
		return models.CategoryPerformance, true
	case models.CategoryMobile:
		return models.CategoryMobile, true
	default:
		return "", false
	}
}

// Score computes category scores for a set of findings. Info findings carry
// no verdict and are left out of every denominator, as are findings of an
// unknown category, such as one read back from an older record. Score is
// pure and the order of findings does not matter.
func Score(findings []models.Finding) models.CategoryScores {
	tallies := make(map[models.Category]*tally, 4)
	for _, c := range []models.Category{
		models.CategoryTechnical,
		models.CategoryOnPage,
		models.CategoryPerformance,
		models.CategoryMobile,
	} {
		tallies[c] = &tally{}
	}

	for _, f := range findings {
		c, ok := bucket(f.Category)
		if !ok {
			continue
		}
		t := tallies[c]
		switch f.Status {
		case models.StatusPassed:
			t.passed++
			t.total++
		case models.StatusWarning:
			t.warned++
			t.total++
		case models.StatusFailed:
			t.total++
		}
	}

	s := models.CategoryScores{
		Technical:   tallies[models.CategoryTechnical].score(),
		OnPage:      tallies[models.CategoryOnPage].score(),
		Performance: tallies[models.CategoryPerformance].score(),
		Mobile:      tallies[models.CategoryMobile].score(),
	}
	s.Accessibility = s.Mobile
	s.Overall = Overall(s.Technical, s.OnPage, s.Performance, s.Mobile)
	return s
}

// Overall combines the four scored categories into the weighted overall
// score, rounded half up.
func Overall(technical, onPage, performance, mobile int) int {
	sum := WeightTechnical*technical + WeightOnPage*onPage + WeightPerformance*performance + WeightMobile*mobile
	return (sum + 50) / 100
}

// Grade returns a letter grade for a score
func Grade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}
