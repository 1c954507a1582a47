package checks

import (
	"fmt"
	"sync"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

// Func evaluates one condition against a snapshot. It must not modify the
// snapshot and returns zero or more findings.
type Func func(s *models.PageSnapshot) []models.Finding

// Check is a named, categorised audit check
type Check struct {
	Name     string
	Category models.Category
	Run      Func
}

// Registry is an ordered collection of checks
type Registry struct {
	checks []Check
}

// NewRegistry creates a registry holding checks in the given order
func NewRegistry(checks ...Check) *Registry {
	r := &Registry{}
	for _, c := range checks {
		r.Register(c)
	}
	return r
}

// Default returns the standard registry used by audits
func Default() *Registry {
	r := NewRegistry()
	for _, group := range [][]Check{
		technicalChecks(),
		securityChecks(),
		onPageChecks(),
		performanceChecks(),
		mobileChecks(),
		contentChecks(),
	} {
		for _, c := range group {
			r.Register(c)
		}
	}
	return r
}

// Register appends a check. Registering a duplicate name panics since the
// registry is assembled at startup.
func (r *Registry) Register(c Check) {
	for _, existing := range r.checks {
		if existing.Name == c.Name {
			panic(fmt.Sprintf("checks: duplicate check %q", c.Name))
		}
	}
	r.checks = append(r.checks, c)
}

// Names returns the check names in registry order
func (r *Registry) Names() []string {
	names := make([]string, len(r.checks))
	for i, c := range r.checks {
		names[i] = c.Name
	}
	return names
}

// Len returns the number of registered checks
func (r *Registry) Len() int {
	return len(r.checks)
}

// RunAll runs every check against the snapshot. Checks run concurrently;
// findings are returned in registry order.
func (r *Registry) RunAll(s *models.PageSnapshot) []models.Finding {
	results := make([][]models.Finding, len(r.checks))

	var wg sync.WaitGroup
	for i, c := range r.checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			results[i] = runCheck(c, s)
		}(i, c)
	}
	wg.Wait()

	var findings []models.Finding
	for _, fs := range results {
		findings = append(findings, fs...)
	}
	return findings
}

// runCheck isolates a panicking check into an Info finding and forces every
// finding onto the check's category.
func runCheck(c Check, s *models.PageSnapshot) (out []models.Finding) {
	defer func() {
		if rec := recover(); rec != nil {
			out = []models.Finding{info(c.Category, c.Name, fmt.Sprintf("Check could not be evaluated: %v", rec))}
		}
	}()
	out = c.Run(s)
	for i := range out {
		out[i].Category = c.Category
		if out[i].Item == "" {
			out[i].Item = c.Name
		}
	}
	return out
}

func pass(cat models.Category, item string, impact models.Impact, msg string) models.Finding {
	return models.Finding{Category: cat, Item: item, Status: models.StatusPassed, Impact: impact, Message: msg}
}

func warn(cat models.Category, item string, impact models.Impact, msg, fix string) models.Finding {
	return models.Finding{Category: cat, Item: item, Status: models.StatusWarning, Impact: impact, Message: msg, Fix: fix}
}

func fail(cat models.Category, item string, impact models.Impact, msg, fix string) models.Finding {
	return models.Finding{Category: cat, Item: item, Status: models.StatusFailed, Impact: impact, Message: msg, Fix: fix}
}

func info(cat models.Category, item string, msg string) models.Finding {
	return models.Finding{Category: cat, Item: item, Status: models.StatusInfo, Impact: models.ImpactLow, Message: msg}
}

func one(f models.Finding) []models.Finding {
	return []models.Finding{f}
}
