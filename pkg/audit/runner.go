// Package audit runs a single page audit end to end: snapshot, checks,
// scoring and persistence of the resulting record.
package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/checks"
	"github.com/amosWeiskopf/seowatch/pkg/metrics"
	"github.com/amosWeiskopf/seowatch/pkg/scoring"
	"github.com/amosWeiskopf/seowatch/pkg/snapshot"
	"github.com/amosWeiskopf/seowatch/pkg/store"
)

// ErrSnapshotUnavailable is returned when the target page cannot be inspected.
// Nothing is persisted for such a run.
var ErrSnapshotUnavailable = errors.New("snapshot unavailable")

// Runner performs audits
type Runner struct {
	provider snapshot.Provider
	registry *checks.Registry
	audits   store.AuditStore
	metrics  *metrics.Metrics
	logger   logging.Logger
	now      func() time.Time
}

// Option customises a Runner
type Option func(*Runner)

// WithRegistry replaces the default check registry
func WithRegistry(r *checks.Registry) Option {
	return func(rn *Runner) { rn.registry = r }
}

// WithMetrics records audit outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(rn *Runner) { rn.metrics = m }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(rn *Runner) { rn.now = now }
}

// NewRunner creates a Runner using the default registry
func NewRunner(provider snapshot.Provider, audits store.AuditStore, logger logging.Logger, opts ...Option) *Runner {
	r := &Runner{
		provider: provider,
		registry: checks.Default(),
		audits:   audits,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run audits targetURL and persists the record. It does not retry; a failed
// snapshot returns an error wrapping ErrSnapshotUnavailable.
func (r *Runner) Run(ctx context.Context, targetURL string, triggeredBy models.TriggeredBy) (*models.AuditRecord, error) {
	start := r.now()
	log := r.logger.WithFields(logging.Fields{
		"target":       targetURL,
		"triggered_by": triggeredBy,
	})

	if strings.TrimSpace(targetURL) == "" {
		r.metrics.AuditFailed(string(triggeredBy))
		return nil, fmt.Errorf("%w: empty target URL", ErrSnapshotUnavailable)
	}

	snap, err := r.provider.Snapshot(ctx, targetURL)
	if err != nil {
		r.metrics.AuditFailed(string(triggeredBy))
		log.WithError(err).Warn("Audit failed: snapshot unavailable")
		return nil, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}

	findings := r.registry.RunAll(snap)
	rec := &models.AuditRecord{
		ID:          uuid.NewString(),
		TargetURL:   targetURL,
		TriggeredBy: triggeredBy,
		Timestamp:   r.now(),
		Findings:    findings,
		Scores:      scoring.Score(findings),
		Totals:      models.CountTotals(findings),
	}

	if err := r.audits.SaveAudit(ctx, rec); err != nil {
		r.metrics.AuditFailed(string(triggeredBy))
		return nil, fmt.Errorf("failed to persist audit: %w", err)
	}

	r.metrics.AuditCompleted(string(triggeredBy), targetURL, r.now().Sub(start), scoreLabels(rec.Scores), findingLabels(findings))
	log.WithFields(logging.Fields{
		"audit_id": rec.ID,
		"overall":  rec.Scores.Overall,
		"failed":   rec.Totals.Failed,
	}).Info("Audit completed")

	return rec, nil
}

func scoreLabels(s models.CategoryScores) map[string]int {
	return map[string]int{
		"technical":     s.Technical,
		"on_page":       s.OnPage,
		"performance":   s.Performance,
		"mobile":        s.Mobile,
		"accessibility": s.Accessibility,
		"overall":       s.Overall,
	}
}

func findingLabels(findings []models.Finding) map[[2]string]int {
	out := make(map[[2]string]int)
	for _, f := range findings {
		out[[2]string{string(f.Category), string(f.Status)}]++
	}
	return out
}
