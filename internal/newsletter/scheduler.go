package newsletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bissquit/pnw-deals/internal/pkg/ctxlog"
	"github.com/bissquit/pnw-deals/internal/pkg/distlock"
)

// DispatchLockKey is the lock shared by scheduled and manual runs.
const DispatchLockKey = "newsletter-dispatch"

// Runner executes a dispatch run.
type Runner interface {
	Run(ctx context.Context) (*Outcome, error)
}

// RunExclusive runs r while holding lock. When another replica holds the
// lock it returns ErrRunInProgress without running.
func RunExclusive(ctx context.Context, lock distlock.DistLock, r Runner) (*Outcome, error) {
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire dispatch lock: %w", err)
	}
	if !acquired {
		return nil, ErrRunInProgress
	}
	defer func() {
		// Release with a fresh context so a canceled run still frees the lock.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil {
			ctxlog.FromContext(ctx).Warn("failed to release dispatch lock", "error", err)
		}
	}()

	return r.Run(ctx)
}

// Schedule is a weekly point in time, in UTC.
type Schedule struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
}

// DefaultSchedule is Monday 09:00 UTC.
func DefaultSchedule() Schedule {
	return Schedule{Weekday: time.Monday, Hour: 9}
}

// ParseWeekday parses an English weekday name such as "monday" or "Mon".
func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := d.String()
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// Next returns the first scheduled time strictly after t.
func (s Schedule) Next(t time.Time) time.Time {
	t = t.UTC()
	candidate := time.Date(t.Year(), t.Month(), t.Day(), s.Hour, s.Minute, 0, 0, time.UTC)
	days := (int(s.Weekday) - int(t.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, days)
	if !candidate.After(t) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

// Scheduler triggers a dispatch run every week.
type Scheduler struct {
	schedule Schedule
	runner   Runner
	newLock  distlock.Factory
	now      func() time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewScheduler creates a weekly scheduler.
func NewScheduler(schedule Schedule, runner Runner, newLock distlock.Factory) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		runner:   runner,
		newLock:  newLock,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the scheduler goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("starting newsletter scheduler",
		"weekday", s.schedule.Weekday,
		"hour", s.schedule.Hour,
		"minute", s.schedule.Minute,
		"next_run", s.schedule.Next(s.now()),
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("newsletter scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	ctx, logger := ctxlog.With(ctx, "trigger", "schedule")
	outcome, err := RunExclusive(ctx, s.newLock(DispatchLockKey), s.runner)
	switch {
	case errors.Is(err, ErrRunInProgress):
		logger.Info("scheduled newsletter run skipped, lock held elsewhere")
	case err != nil:
		logger.Error("scheduled newsletter run failed", "error", err)
	default:
		logger.Info("scheduled newsletter run completed",
			"run_id", outcome.RunID,
			"sent", outcome.Sent,
			"failed", len(outcome.Failed),
		)
	}
}
