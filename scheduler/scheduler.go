// Package scheduler triggers pipeline runs on an interval or a fixed
// daily time, with single-run exclusivity.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"auto_xhs_publisher/config"
	"auto_xhs_publisher/logger"
)

// Runner executes one pipeline run. The scheduler guarantees it is
// never invoked concurrently with itself.
type Runner interface {
	Run(ctx context.Context, mode, domain string) error
}

// now is overridden in tests to provide deterministic timings.
var now = time.Now

// Scheduler owns the timer loop and the one-active-run flag. The flag
// is set atomically before dispatch and cleared only after the run
// reaches a terminal state. mu orders run admission against Stop: a run
// admitted under mu has joined the WaitGroup before the stop flag
// flips, so the loop's final Wait observes it.
type Scheduler struct {
	cfg    config.ScheduleConfig
	runner Runner
	log    *logger.Logger

	mu      sync.Mutex
	active  atomic.Bool
	stopped atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	runs    sync.WaitGroup
}

func New(cfg config.ScheduleConfig, runner Runner, log *logger.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if log == nil {
		log = logger.New("info")
	}
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start launches the timer loop. If run-on-start is set an immediate
// trigger fires first, independent of the next scheduled occurrence.
func (s *Scheduler) Start() {
	if s.cfg.DailyAt != "" {
		s.log.Info("scheduled daily publishing", "at", s.cfg.DailyAt)
	} else {
		s.log.Info("scheduled interval publishing", "hours", s.cfg.IntervalHours)
	}

	if s.cfg.RunOnStart {
		s.log.Info("run-on-start trigger")
		s.TriggerNow()
	}

	go s.loop()
}

func (s *Scheduler) loop() {
	defer close(s.doneCh)

	for {
		wake := s.nextWake(now())
		timer := time.NewTimer(wake)
		s.log.Info("next trigger scheduled", "in", wake.String())

		select {
		case <-timer.C:
			s.dispatch("timer")
		case <-s.stopCh:
			timer.Stop()
			s.log.Info("scheduler stopping, waiting for in-flight run")
			s.runs.Wait()
			return
		}
	}
}

// TriggerNow requests an out-of-band run. If a run is already active
// the trigger is dropped, not queued.
func (s *Scheduler) TriggerNow() {
	if s.stopped.Load() {
		return
	}
	s.dispatch("manual")
}

// Stop halts the loop and waits for any in-flight run to reach a
// terminal state. In-flight collaborator calls complete rather than
// being hard-cancelled, so the automation session stays consistent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	s.mu.Unlock()
	<-s.doneCh
}

// dispatch starts a run unless one is already active or the scheduler
// is stopping. The drop is logged; it is not an error.
func (s *Scheduler) dispatch(source string) {
	s.mu.Lock()
	if s.stopped.Load() {
		s.mu.Unlock()
		return
	}
	if !s.active.CompareAndSwap(false, true) {
		s.mu.Unlock()
		s.log.Info("trigger dropped, run already active", "source", source)
		return
	}
	s.runs.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.runs.Done()
		defer s.active.Store(false)

		start := now()
		s.log.Info("run dispatched", "source", source)
		if err := s.runner.Run(context.Background(), s.cfg.Mode, s.cfg.Domain); err != nil {
			// 失败不影响调度循环，下一次触发照常进行。
			s.log.Error("run finished with failure", "error", err)
		}
		s.log.Info("run finished", "elapsed", now().Sub(start).String())
	}()
}

// nextWake computes the sleep until the next trigger, always relative
// to now so missed wake-ups are not double-fired. A fixed daily time
// takes priority over the interval.
func (s *Scheduler) nextWake(from time.Time) time.Duration {
	if s.cfg.DailyAt != "" {
		hour, minute, err := config.ParseDailyAt(s.cfg.DailyAt)
		if err == nil {
			next := time.Date(from.Year(), from.Month(), from.Day(), hour, minute, 0, 0, from.Location())
			if !next.After(from) {
				next = next.Add(24 * time.Hour)
			}
			return next.Sub(from)
		}
		s.log.Error("invalid daily_at, falling back to interval", "value", s.cfg.DailyAt)
	}

	hours := s.cfg.IntervalHours
	if hours < 1 {
		hours = 1
	}
	return time.Duration(hours) * time.Hour
}
