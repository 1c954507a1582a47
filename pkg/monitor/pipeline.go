// Package monitor connects audits, keyword syncs and failure signals to the
// rule engine and the alert manager, and registers the scheduled jobs that
// drive them.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/alerts"
	"github.com/amosWeiskopf/seowatch/pkg/audit"
	"github.com/amosWeiskopf/seowatch/pkg/ranking"
	"github.com/amosWeiskopf/seowatch/pkg/rules"
	"github.com/amosWeiskopf/seowatch/pkg/scheduler"
	"github.com/amosWeiskopf/seowatch/pkg/store"
)

// ErrNoSyncer is returned by SyncKeywords when no provider is configured
var ErrNoSyncer = errors.New("keyword sync is not configured")

// Outcome is the result of one pipeline pass
type Outcome struct {
	Record     *models.AuditRecord
	Sync       *ranking.SyncResult
	Raised     []models.Alert
	RuleErrors []error
}

// Pipeline evaluates the rules of a user whenever new data arrives
type Pipeline struct {
	runner *audit.Runner
	audits store.AuditStore
	rules  store.RuleStore
	engine *rules.Engine
	alerts *alerts.Manager
	syncer *ranking.Syncer
	logger logging.Logger
	now    func() time.Time
}

// Option customises a Pipeline
type Option func(*Pipeline)

// WithSyncer enables keyword sync
func WithSyncer(s *ranking.Syncer) Option {
	return func(p *Pipeline) { p.syncer = s }
}

// WithClock overrides the evaluation time of syncs and signals
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline
func New(runner *audit.Runner, audits store.AuditStore, ruleStore store.RuleStore, engine *rules.Engine, manager *alerts.Manager, logger logging.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		runner: runner,
		audits: audits,
		rules:  ruleStore,
		engine: engine,
		alerts: manager,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Audit runs an audit of targetURL and evaluates userID's rules against the
// new record. A failed audit is returned without evaluation.
func (p *Pipeline) Audit(ctx context.Context, userID, targetURL string, by models.TriggeredBy) (*Outcome, error) {
	rec, err := p.runner.Run(ctx, targetURL, by)
	if err != nil {
		return nil, err
	}
	out := &Outcome{Record: rec}

	userRules, err := p.rules.ListRules(ctx, userID)
	if err != nil {
		return out, fmt.Errorf("list rules: %w", err)
	}
	if len(userRules) == 0 {
		return out, nil
	}

	var history []models.AuditRecord
	if lookback := rules.Lookback(userRules); lookback > 0 {
		history, err = p.audits.AuditHistory(ctx, rec.TargetURL, rec.Timestamp.Add(-lookback))
		if err != nil {
			return out, fmt.Errorf("load audit history: %w", err)
		}
	}

	err = p.evaluate(ctx, out, rules.Input{Record: rec, History: history, Now: rec.Timestamp}, userRules)
	return out, err
}

// SyncKeywords pulls provider data for targetURL and evaluates userID's
// keyword rules. A provider failure is also evaluated as a source signal
// before being returned.
func (p *Pipeline) SyncKeywords(ctx context.Context, userID, targetURL, property string) (*Outcome, error) {
	return p.syncKeywords(ctx, userID, targetURL, property, true)
}

func (p *Pipeline) syncKeywords(ctx context.Context, userID, targetURL, property string, signalFailure bool) (*Outcome, error) {
	if p.syncer == nil {
		return nil, ErrNoSyncer
	}
	if property == "" {
		property = targetURL
	}

	res, err := p.syncer.Sync(ctx, userID, targetURL, property)
	if err != nil {
		var srcErr *ranking.SourceError
		if signalFailure && errors.As(err, &srcErr) {
			out, serr := p.HandleSignals(ctx, userID, srcErr.Signal(targetURL, p.now()))
			return out, errors.Join(err, serr)
		}
		return nil, err
	}

	out := &Outcome{Sync: res}
	if len(res.Series) == 0 {
		return out, nil
	}
	userRules, err := p.rules.ListRules(ctx, userID)
	if err != nil {
		return out, fmt.Errorf("list rules: %w", err)
	}
	err = p.evaluate(ctx, out, rules.Input{Keywords: res.Series, Now: p.now()}, userRules)
	return out, err
}

// HandleSignals evaluates failure signals against userID's rules
func (p *Pipeline) HandleSignals(ctx context.Context, userID string, signals ...rules.Signal) (*Outcome, error) {
	out := &Outcome{}
	userRules, err := p.rules.ListRules(ctx, userID)
	if err != nil {
		return out, fmt.Errorf("list rules: %w", err)
	}
	err = p.evaluate(ctx, out, rules.Input{Signals: signals, Now: p.now()}, userRules)
	return out, err
}

// SignalHandler adapts HandleSignals for the scheduler. Errors are logged.
func (p *Pipeline) SignalHandler() scheduler.SignalHandler {
	return func(ctx context.Context, userID string, sig rules.Signal) {
		if _, err := p.HandleSignals(ctx, userID, sig); err != nil {
			p.logger.WithError(err).WithFields(logging.Fields{
				"user_id": userID,
				"source":  sig.Source,
			}).Error("Failed to raise alerts for failure signal")
		}
	}
}

func (p *Pipeline) evaluate(ctx context.Context, out *Outcome, in rules.Input, userRules []models.AlertRule) error {
	candidates, ruleErrs := p.engine.Evaluate(in, userRules)
	out.RuleErrors = ruleErrs
	if len(candidates) == 0 {
		return nil
	}
	raised, err := p.alerts.Raise(ctx, candidates)
	out.Raised = raised
	if err != nil {
		return fmt.Errorf("raise alerts: %w", err)
	}
	return nil
}

// RegisterJobs installs the job for every schedule type. Scheduled keyword
// syncs leave failure signalling to the scheduler so a failed run is
// reported once.
func (p *Pipeline) RegisterJobs(s *scheduler.Scheduler) {
	s.Register(models.ScheduleAudit, func(ctx context.Context, sched models.MonitoringSchedule, _ time.Time) error {
		_, err := p.Audit(ctx, sched.UserID, sched.Config[models.ConfigTargetURL], models.TriggeredScheduled)
		return err
	})
	s.Register(models.ScheduleKeywordSync, func(ctx context.Context, sched models.MonitoringSchedule, _ time.Time) error {
		_, err := p.syncKeywords(ctx, sched.UserID, sched.Config[models.ConfigTargetURL], sched.Config[models.ConfigProperty], false)
		return err
	})
	s.Register(models.ScheduleDailyDigest, p.digestJob(alerts.Daily))
	s.Register(models.ScheduleWeeklyDigest, p.digestJob(alerts.Weekly))
}

func (p *Pipeline) digestJob(period alerts.Period) scheduler.Job {
	return func(ctx context.Context, sched models.MonitoringSchedule, now time.Time) error {
		n, err := p.alerts.SendDigest(ctx, sched.UserID, period, now)
		if err != nil {
			return err
		}
		p.logger.WithFields(logging.Fields{
			"user_id": sched.UserID,
			"period":  period,
			"alerts":  n,
		}).Debug("Digest job finished")
		return nil
	}
}
