// Package scheduler runs cron-driven monitoring schedules. A periodic sweep
// ticks every schedule; due ones run under a skip-if-running lock and their
// outcome is recorded. Failures never disable a schedule; they are reported
// as job-failure signals instead.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/amosWeiskopf/seowatch/internal/logging"
	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/metrics"
	"github.com/amosWeiskopf/seowatch/pkg/rules"
	"github.com/amosWeiskopf/seowatch/pkg/store"
)

// Job executes one run of a schedule
type Job func(ctx context.Context, s models.MonitoringSchedule, now time.Time) error

// SignalHandler receives job-failure signals on behalf of the schedule owner
type SignalHandler func(ctx context.Context, userID string, sig rules.Signal)

// Scheduler ticks monitoring schedules
type Scheduler struct {
	schedules store.ScheduleStore
	locker    Locker
	lockTTL   time.Duration
	sweepSpec string
	onSignal  SignalHandler
	metrics   *metrics.Metrics
	logger    logging.Logger
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[models.ScheduleType]Job

	cron *cron.Cron
}

// Option customises a Scheduler
type Option func(*Scheduler)

// WithLocker replaces the in-process lock
func WithLocker(l Locker) Option {
	return func(s *Scheduler) { s.locker = l }
}

// WithLockTTL bounds how long a run may hold its lock
func WithLockTTL(d time.Duration) Option {
	return func(s *Scheduler) { s.lockTTL = d }
}

// WithSweepSpec sets the cron spec of the sweep
func WithSweepSpec(spec string) Option {
	return func(s *Scheduler) { s.sweepSpec = spec }
}

// WithSignalHandler receives a signal for every failed run
func WithSignalHandler(h SignalHandler) Option {
	return func(s *Scheduler) { s.onSignal = h }
}

// WithMetrics records runs and skips
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock overrides the time source of the sweep
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler
func New(schedules store.ScheduleStore, logger logging.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		schedules: schedules,
		locker:    NewLocalLocker(),
		lockTTL:   15 * time.Minute,
		sweepSpec: "@every 1m",
		logger:    logger,
		now:       time.Now,
		jobs:      make(map[models.ScheduleType]Job),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register sets the job run for schedules of type t
func (s *Scheduler) Register(t models.ScheduleType, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[t] = job
}

// ParseCron validates a standard five-field expression or descriptor
func ParseCron(expr string) (cron.Schedule, error) {
	spec, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return spec, nil
}

// Add validates and stores a new schedule
func (s *Scheduler) Add(ctx context.Context, sched *models.MonitoringSchedule) error {
	if _, err := ParseCron(sched.CronExpression); err != nil {
		return err
	}
	switch sched.Type {
	case models.ScheduleAudit, models.ScheduleKeywordSync:
		if sched.Config[models.ConfigTargetURL] == "" {
			return fmt.Errorf("%s schedule requires %s", sched.Type, models.ConfigTargetURL)
		}
	case models.ScheduleDailyDigest, models.ScheduleWeeklyDigest:
	default:
		return fmt.Errorf("unknown schedule type %q", sched.Type)
	}
	if sched.UserID == "" {
		return fmt.Errorf("schedule requires a user")
	}
	if sched.ID == "" {
		sched.ID = uuid.NewString()
	}
	if sched.CreatedAt.IsZero() {
		sched.CreatedAt = s.now()
	}
	sched.LastRunStatus = models.RunPending
	return s.schedules.SaveSchedule(ctx, sched)
}

// Due reports whether sched should run at now. The reference point is the
// last run, else the creation time, else the start of the current minute.
func Due(sched models.MonitoringSchedule, now time.Time) (bool, error) {
	spec, err := ParseCron(sched.CronExpression)
	if err != nil {
		return false, err
	}
	var ref time.Time
	switch {
	case sched.LastRunAt != nil:
		ref = *sched.LastRunAt
	case !sched.CreatedAt.IsZero():
		ref = sched.CreatedAt.Add(-time.Second)
	default:
		ref = now.Truncate(time.Minute).Add(-time.Second)
	}
	next := spec.Next(ref)
	return !next.IsZero() && !next.After(now), nil
}

// Tick runs sched if it is enabled and due at now. It reports whether the
// job ran. A run skipped because a previous one still holds the lock
// reports false with no error. sched may be a stale copy: once the lock is
// held the stored schedule is read again and must still be enabled and due.
func (s *Scheduler) Tick(ctx context.Context, sched models.MonitoringSchedule, now time.Time) (bool, error) {
	if !sched.Enabled {
		return false, nil
	}
	due, err := Due(sched, now)
	if err != nil {
		return false, err
	}
	if !due {
		return false, nil
	}
	return s.execute(ctx, sched, now, true)
}

// RunNow runs schedule id immediately regardless of its cron expression or
// enabled flag
func (s *Scheduler) RunNow(ctx context.Context, id string) error {
	sched, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return err
	}
	ran, err := s.execute(ctx, *sched, s.now(), false)
	if err != nil {
		return err
	}
	if !ran {
		return fmt.Errorf("schedule %s is already running", id)
	}
	return nil
}

// Sweep ticks every stored schedule concurrently and waits for the runs
func (s *Scheduler) Sweep(ctx context.Context) {
	all, err := s.schedules.ListSchedules(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list schedules")
		return
	}
	now := s.now()

	var wg sync.WaitGroup
	for _, sched := range all {
		if !sched.Enabled {
			continue
		}
		wg.Add(1)
		go func(sched models.MonitoringSchedule) {
			defer wg.Done()
			if _, err := s.Tick(ctx, sched, now); err != nil {
				s.logger.WithError(err).WithFields(logging.Fields{
					"schedule_id": sched.ID,
					"type":        sched.Type,
				}).Warn("Schedule tick failed")
			}
		}(sched)
	}
	wg.Wait()
}

// Start runs the sweep on the sweep spec until Stop
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(s.sweepSpec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron = c
	c.Start()
	s.logger.WithField("sweep", s.sweepSpec).Info("Scheduler started")
	return nil
}

// Stop stops the sweep and waits for running jobs
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// stillDue re-reads the schedule under the lock. A run that finished between
// the caller's read and the lock has already moved LastRunAt past now's slot.
func (s *Scheduler) stillDue(ctx context.Context, id string, now time.Time) (*models.MonitoringSchedule, bool, error) {
	fresh, err := s.schedules.GetSchedule(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("reload schedule: %w", err)
	}
	if !fresh.Enabled {
		return fresh, false, nil
	}
	due, err := Due(*fresh, now)
	return fresh, due, err
}

func (s *Scheduler) execute(ctx context.Context, sched models.MonitoringSchedule, now time.Time, recheck bool) (bool, error) {
	s.mu.RLock()
	job, ok := s.jobs[sched.Type]
	s.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("no job registered for schedule type %q", sched.Type)
	}

	log := s.logger.WithFields(logging.Fields{
		"schedule_id": sched.ID,
		"type":        sched.Type,
	})

	release, locked, err := s.locker.TryLock(ctx, "schedule:"+sched.ID, s.lockTTL)
	if err != nil {
		return false, err
	}
	if !locked {
		s.metrics.ScheduleSkipped(string(sched.Type))
		log.Info("Previous run still in progress, skipping")
		return false, nil
	}
	defer release()

	if recheck {
		fresh, due, err := s.stillDue(ctx, sched.ID, now)
		if err != nil {
			return false, err
		}
		if !due {
			log.Debug("Schedule already ran for this slot, skipping")
			return false, nil
		}
		sched = *fresh
	}

	runErr := runJob(ctx, job, sched, now)
	status, msg := models.RunSuccess, ""
	if runErr != nil {
		status, msg = models.RunFailed, runErr.Error()
	}

	updated, err := s.schedules.RecordRun(ctx, sched.ID, now, status, msg)
	if err != nil {
		return true, errors.Join(runErr, fmt.Errorf("record run: %w", err))
	}
	s.metrics.ScheduleRun(string(sched.Type), string(status))

	if runErr == nil {
		log.Info("Scheduled job completed")
		return true, nil
	}

	log.WithError(runErr).WithField("consecutive_failures", updated.ConsecutiveFailures).Warn("Scheduled job failed")
	if s.onSignal != nil {
		s.onSignal(ctx, sched.UserID, rules.Signal{
			Kind:                rules.SignalJobFailure,
			Source:              sched.ID,
			ScheduleType:        sched.Type,
			TargetURL:           sched.Config[models.ConfigTargetURL],
			Message:             msg,
			ConsecutiveFailures: updated.ConsecutiveFailures,
			At:                  now,
		})
	}
	return true, runErr
}

func runJob(ctx context.Context, job Job, sched models.MonitoringSchedule, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job(ctx, sched, now)
}
