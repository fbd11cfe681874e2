// Package retention removes analytics older than the configured horizon.
package retention

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrAlreadyRunning is returned when a sweep is requested while one is in progress.
var ErrAlreadyRunning = errors.New("retention sweep already running")

// State of a Job.
const (
	StateIdle    = "idle"
	StateRunning = "running"
)

// Purger deletes analytics created before cutoff.
type Purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time, progress func(deleted, total int64)) (int64, error)
}

// Result describes one sweep.
type Result struct {
	Skipped  bool
	Cutoff   time.Time
	Deleted  int64
	Duration time.Duration
}

// Job is a stateless sweep over the analytics table. Only one sweep runs at a time.
type Job struct {
	purger        Purger
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
	running       atomic.Bool
}

// NewJob creates a Job. retentionDays of 0 keeps analytics forever.
func NewJob(purger Purger, retentionDays int, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		purger:        purger,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logger.With("component", "retention.job"),
	}
}

// State reports whether a sweep is in progress.
func (j *Job) State() string {
	if j.running.Load() {
		return StateRunning
	}
	return StateIdle
}

// Run performs one sweep: cutoff = now - retention days.
func (j *Job) Run(ctx context.Context) (Result, error) {
	if j.retentionDays <= 0 {
		j.logger.Debug("analytics retention unlimited, skipping sweep")
		return Result{Skipped: true}, nil
	}
	if !j.running.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRunning
	}
	defer j.running.Store(false)

	start := j.now()
	cutoff := start.AddDate(0, 0, -j.retentionDays)
	j.logger.Info("analytics retention sweep started", "retention_days", j.retentionDays, "cutoff", cutoff)

	deleted, err := j.purger.PurgeOlderThan(ctx, cutoff, func(deleted, total int64) {
		j.logger.Debug("analytics retention progress", "deleted", deleted, "total", total)
	})
	result := Result{Cutoff: cutoff, Deleted: deleted, Duration: j.now().Sub(start)}
	if err != nil {
		j.logger.Error("analytics retention sweep failed", "deleted", deleted, "error", err)
		return result, err
	}

	j.logger.Info("analytics retention sweep finished", "deleted", deleted, "duration_ms", result.Duration.Milliseconds())
	return result, nil
}
