package retention

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	runs chan struct{}
	n    atomic.Int32
}

func newCountingRunner() *countingRunner {
	return &countingRunner{runs: make(chan struct{}, 16)}
}

func (r *countingRunner) Run(context.Context) (Result, error) {
	r.n.Add(1)
	r.runs <- struct{}{}
	return Result{}, nil
}

func (r *countingRunner) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.runs:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a sweep")
	}
}

type memoryLocker struct {
	mu       sync.Mutex
	held     map[string]bool
	failWith error
	releases int
}

func (l *memoryLocker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWith != nil {
		return false, l.failWith
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *memoryLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	l.releases++
	return nil
}

func TestNewScheduler_InvalidSpec(t *testing.T) {
	t.Parallel()

	_, err := NewScheduler(newCountingRunner(), nil, "every now and then", nil)
	assert.Error(t, err)
}

func TestScheduler_RunsAtStartAndOnTrigger(t *testing.T) {
	t.Parallel()

	runner := newCountingRunner()
	locker := &memoryLocker{held: map[string]bool{}}
	s, err := NewScheduler(runner, locker, "@every 24h", nil)
	require.NoError(t, err)

	s.Start()
	runner.wait(t)

	s.TriggerNow()
	runner.wait(t)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, int32(2), runner.n.Load())

	locker.mu.Lock()
	defer locker.mu.Unlock()
	assert.Equal(t, 2, locker.releases)
	assert.Empty(t, locker.held)
}

func TestScheduler_SkipsWhenLockHeldElsewhere(t *testing.T) {
	t.Parallel()

	runner := newCountingRunner()
	locker := &memoryLocker{held: map[string]bool{LockKey: true}}
	s, err := NewScheduler(runner, locker, "", nil)
	require.NoError(t, err)

	s.sweep()

	assert.Equal(t, int32(0), runner.n.Load())
}

func TestScheduler_LockErrorRunsUnguarded(t *testing.T) {
	t.Parallel()

	runner := newCountingRunner()
	locker := &memoryLocker{held: map[string]bool{}, failWith: errors.New("redis down")}
	s, err := NewScheduler(runner, locker, "", nil)
	require.NoError(t, err)

	s.sweep()

	assert.Equal(t, int32(1), runner.n.Load())
}

func TestScheduler_ShutdownWithoutStart(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler(newCountingRunner(), nil, "", nil)
	require.NoError(t, err)
	assert.NoError(t, s.Shutdown(context.Background()))
}
