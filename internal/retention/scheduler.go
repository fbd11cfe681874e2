package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultSchedule runs the sweep once a day.
	DefaultSchedule = "@every 24h"

	// LockKey guards the sweep across instances.
	LockKey = "lock:smartlinks:retention"

	// DefaultLockTTL outlives any realistic sweep.
	DefaultLockTTL = 30 * time.Minute

	// DefaultRunTimeout bounds a single sweep.
	DefaultRunTimeout = 20 * time.Minute
)

// Locker provides a best-effort lock shared by every instance.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Runner is the sweep invoked on schedule.
type Runner interface {
	Run(ctx context.Context) (Result, error)
}

// Scheduler runs a Runner on a cron schedule, once at start and on demand.
// cron.SkipIfStillRunning keeps one in-process execution; the Locker keeps one across
// instances. A lost race only means a redundant, idempotent purge.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	locker  Locker
	lockTTL time.Duration
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	trigger chan struct{}
	stop    chan struct{}
	started bool
}

// NewScheduler validates spec and builds a Scheduler. locker may be nil.
func NewScheduler(runner Runner, locker Locker, spec string, logger *slog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "retention.scheduler")

	cronLogger := slogCronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	s := &Scheduler{
		cron:    c,
		runner:  runner,
		locker:  locker,
		lockTTL: DefaultLockTTL,
		timeout: DefaultRunTimeout,
		logger:  logger,
		trigger: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	if _, err := c.AddFunc(spec, s.sweep); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the schedule and queues an immediate sweep.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.triggerLoop()
	s.cron.Start()
	s.TriggerNow()
}

// TriggerNow requests a sweep outside the schedule, e.g. after settings change.
// Requests made while one is pending collapse into it.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) triggerLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stop:
			return
		case <-s.trigger:
			s.sweep()
		}
	}
}

// sweep runs one guarded execution. Errors end the run; the next tick is unaffected.
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if s.locker != nil {
		ok, err := s.locker.Acquire(ctx, LockKey, s.lockTTL)
		if err != nil {
			s.logger.Warn("retention lock unavailable, running unguarded", "error", err)
		} else if !ok {
			s.logger.Info("retention sweep held by another instance, skipping")
			return
		} else {
			defer func() {
				if err := s.locker.Release(context.Background(), LockKey); err != nil {
					s.logger.Warn("failed to release retention lock", "error", err)
				}
			}()
		}
	}

	if _, err := s.runner.Run(ctx); err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			s.logger.Info("retention sweep already in progress, skipping")
			return
		}
		s.logger.Error("retention sweep aborted", "error", err)
	}
}

// Shutdown stops the schedule and waits for in-flight sweeps.
// It implements server.ShutdownFunc.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stop)
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		<-cronDone.Done()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("retention scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// slogCronLogger adapts slog to cron.Logger.
type slogCronLogger struct {
	logger *slog.Logger
}

func (l slogCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l slogCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
