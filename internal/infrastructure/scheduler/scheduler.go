package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps cron and tags every entry with a hook name so all pending
// triggers of one hook can be listed or drained together.
type Scheduler struct {
	cron *cron.Cron
	now  func() time.Time
}

func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron: cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		now:  time.Now,
	}
}

type hookJob struct {
	hook string
	fn   func(ctx context.Context) error
}

func (j hookJob) Run() {
	_ = j.fn(context.Background())
}

// Once arms a single trigger at the given instant.
func (s *Scheduler) Once(hook string, at time.Time, job func(context.Context) error) {
	s.cron.Schedule(OnceSchedule{At: at}, hookJob{hook: hook, fn: job})
}

// Every arms a recurring trigger whose first activation is first.
func (s *Scheduler) Every(hook string, first time.Time, period time.Duration, job func(context.Context) error) {
	s.cron.Schedule(AnchoredSchedule{First: first, Period: period}, hookJob{hook: hook, fn: job})
}

// Unschedule removes every entry registered under hook, spent one-shots
// included, and returns how many were removed.
func (s *Scheduler) Unschedule(hook string) int {
	removed := 0
	for {
		id, ok := s.find(hook)
		if !ok {
			return removed
		}
		s.cron.Remove(id)
		removed++
	}
}

func (s *Scheduler) find(hook string) (cron.EntryID, bool) {
	for _, e := range s.cron.Entries() {
		if j, ok := e.Job.(hookJob); ok && j.hook == hook {
			return e.ID, true
		}
	}
	return 0, false
}

// Next returns the earliest pending activation for hook.
func (s *Scheduler) Next(hook string) (time.Time, bool) {
	var next time.Time
	now := s.now()
	for _, e := range s.cron.Entries() {
		j, ok := e.Job.(hookJob)
		if !ok || j.hook != hook {
			continue
		}
		t := e.Next
		if t.IsZero() {
			t = e.Schedule.Next(now)
		}
		if t.IsZero() {
			continue
		}
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next, !next.IsZero()
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// OnceSchedule fires exactly once at At.
type OnceSchedule struct {
	At time.Time
}

func (o OnceSchedule) Next(t time.Time) time.Time {
	if t.Before(o.At) {
		return o.At
	}
	return time.Time{}
}

// AnchoredSchedule fires at First and then every Period after it.
type AnchoredSchedule struct {
	First  time.Time
	Period time.Duration
}

func (a AnchoredSchedule) Next(t time.Time) time.Time {
	if t.Before(a.First) {
		return a.First
	}
	if a.Period <= 0 {
		return time.Time{}
	}
	n := t.Sub(a.First)/a.Period + 1
	return a.First.Add(n * a.Period)
}
