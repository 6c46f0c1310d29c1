package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/semmidev/sitekeep/internal/domain"
	"github.com/semmidev/sitekeep/internal/infrastructure/metrics"
)

const (
	BackupHook     = "sitekeep_scheduled_backup"
	backupLockKey  = "lock:scheduled_backup"
	DefaultLockTTL = 30 * time.Minute
)

// TriggerScheduler arms and drains timed triggers grouped by hook.
type TriggerScheduler interface {
	Once(hook string, at time.Time, job func(context.Context) error)
	Every(hook string, first time.Time, period time.Duration, job func(context.Context) error)
	Unschedule(hook string) int
	Next(hook string) (time.Time, bool)
}

// Recurrence keeps at most one pending trigger for scheduled backups and runs
// them under an overlap lock.
type Recurrence struct {
	scheduler TriggerScheduler
	locker    domain.Locker
	executor  domain.BackupExecutor
	settings  func() domain.Settings
	metrics   *metrics.Metrics
	logger    Logger
	lockTTL   time.Duration
	now       func() time.Time

	mu       sync.Mutex
	schedule domain.Schedule
}

func NewRecurrence(
	scheduler TriggerScheduler,
	locker domain.Locker,
	executor domain.BackupExecutor,
	settings func() domain.Settings,
	m *metrics.Metrics,
	logger Logger,
	lockTTL time.Duration,
) *Recurrence {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Recurrence{
		scheduler: scheduler,
		locker:    locker,
		executor:  executor,
		settings:  settings,
		metrics:   m,
		logger:    logger,
		lockTTL:   lockTTL,
		now:       time.Now,
	}
}

// NextTimestamp returns today at the configured HH:MM in the schedule's
// location, advanced by one period when that instant is not strictly after
// now.
func NextTimestamp(s domain.Schedule, now time.Time) (time.Time, error) {
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}

	var hour, minute int
	if _, err := fmt.Sscanf(s.Time, "%d:%d", &hour, &minute); err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule time %q: %w", s.Time, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid schedule time %q", s.Time)
	}

	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if candidate.After(now) {
		return candidate, nil
	}

	switch s.Frequency {
	case domain.FrequencyDaily, "":
		return candidate.AddDate(0, 0, 1), nil
	case domain.FrequencyEvery2Days:
		return candidate.AddDate(0, 0, 2), nil
	case domain.FrequencyWeekly:
		return candidate.AddDate(0, 0, 7), nil
	case domain.FrequencyMonthly:
		return addMonth(candidate), nil
	default:
		return time.Time{}, fmt.Errorf("unknown frequency %q", s.Frequency)
	}
}

// addMonth moves t one calendar month ahead, clamping the day to the length
// of the target month (Jan 31 -> Feb 28/29).
func addMonth(t time.Time) time.Time {
	y, m, d := t.Date()
	firstOfNext := time.Date(y, m+1, 1, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
	lastDay := firstOfNext.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), d, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
}

// Reschedule drains every pending trigger and, when enabled, arms a new one:
// a one-shot for monthly, a fixed-period recurring trigger otherwise.
func (r *Recurrence) Reschedule(ctx context.Context, s domain.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.schedule = s
	removed := r.scheduler.Unschedule(BackupHook)
	if removed > 0 {
		r.logger.Debugf("Removed %d pending backup trigger(s)", removed)
	}

	if !s.Enabled {
		r.logger.Infof("Scheduled backups disabled")
		return nil
	}

	return r.arm(s)
}

func (r *Recurrence) arm(s domain.Schedule) error {
	next, err := NextTimestamp(s, r.now())
	if err != nil {
		return err
	}

	if period, ok := s.Frequency.Period(); ok {
		r.scheduler.Every(BackupHook, next, period, r.RunScheduled)
	} else {
		r.scheduler.Once(BackupHook, next, r.RunScheduled)
	}

	r.logger.Infof("Next scheduled backup (%s): %s", s.Frequency, next.Format(time.RFC3339))
	return nil
}

// UnscheduleAll drains every pending trigger for the backup hook.
func (r *Recurrence) UnscheduleAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scheduler.Unschedule(BackupHook)
}

func (r *Recurrence) Next() (time.Time, bool) {
	return r.scheduler.Next(BackupHook)
}

func (r *Recurrence) Schedule() domain.Schedule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schedule
}

// RunScheduled is the trigger handler. A held lock means another run is in
// progress and the trigger is skipped silently. Monthly schedules re-arm a
// one-shot for the following month whatever the outcome.
func (r *Recurrence) RunScheduled(ctx context.Context) error {
	defer r.rearmMonthly()

	acquired, err := r.locker.Acquire(ctx, backupLockKey, r.lockTTL)
	if err != nil {
		r.metrics.ScheduledRuns.WithLabelValues("failed").Inc()
		r.logger.Errorf("Scheduled backup lock failed: %v", err)
		return err
	}
	if !acquired {
		r.metrics.ScheduledRuns.WithLabelValues("skipped").Inc()
		r.logger.Debugf("Scheduled backup skipped, previous run still holds the lock")
		return nil
	}
	defer func() {
		if err := r.locker.Release(context.WithoutCancel(ctx), backupLockKey); err != nil {
			r.logger.Warnf("Failed to release scheduled backup lock: %v", err)
		}
	}()

	r.logger.Infof("Scheduled backup starting")
	job, err := r.executor.Run(ctx, r.settings())
	if err != nil {
		r.metrics.ScheduledRuns.WithLabelValues("failed").Inc()
		r.logger.Errorf("Scheduled backup failed: %v", err)
		return err
	}

	r.metrics.ScheduledRuns.WithLabelValues("ran").Inc()
	r.logger.Infof("[%s] Scheduled backup finished: %s", job.ID, job.WorkDir)
	return nil
}

func (r *Recurrence) rearmMonthly() {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.schedule
	if !s.Enabled || s.Frequency != domain.FrequencyMonthly {
		return
	}
	r.scheduler.Unschedule(BackupHook)
	if err := r.arm(s); err != nil {
		r.logger.Errorf("Failed to re-arm monthly backup: %v", err)
	}
}
