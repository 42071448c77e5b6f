package refresh

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRunsImmediately(t *testing.T) {
	s := NewScheduler(zerolog.Nop())

	ran := make(chan struct{})
	var once sync.Once
	handle := s.Start("dashboard", time.Hour, func(ctx context.Context) {
		once.Do(func() { close(ran) })
	})
	defer s.Stop(handle)

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("first refresh did not run immediately")
	}
	assert.Equal(t, 1, s.Active())
}

func TestPeriodicRuns(t *testing.T) {
	s := NewScheduler(zerolog.Nop())

	var runs atomic.Int32
	handle := s.Start("dashboard", 10*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
	})

	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	s.Stop(handle)
}

func TestStopHaltsAndCancels(t *testing.T) {
	s := NewScheduler(zerolog.Nop())

	var runs atomic.Int32
	var sawCancel atomic.Bool
	started := make(chan struct{})
	var once sync.Once

	handle := s.Start("dashboard", 5*time.Millisecond, func(ctx context.Context) {
		runs.Add(1)
		once.Do(func() { close(started) })
		// Simulate a request in flight while the view is being left.
		time.Sleep(20 * time.Millisecond)
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
	})

	<-started
	s.Stop(handle)
	assert.Equal(t, 0, s.Active())

	after := runs.Load()
	assert.True(t, sawCancel.Load(), "the in-flight run observed the cancelled context")

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop returned")
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewScheduler(zerolog.Nop())

	handle := s.Start("dashboard", time.Hour, func(ctx context.Context) {})
	s.Stop(handle)
	s.Stop(handle)
	s.Stop(nil)
	assert.Equal(t, 0, s.Active())
}

func TestRunsNeverOverlap(t *testing.T) {
	s := NewScheduler(zerolog.Nop())

	var inFlight atomic.Int32
	var overlapped atomic.Bool
	var runs atomic.Int32

	handle := s.Start("dashboard", time.Millisecond, func(ctx context.Context) {
		if inFlight.Add(1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		runs.Add(1)
	})

	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, time.Second, time.Millisecond)

	s.Stop(handle)
	assert.False(t, overlapped.Load())
}

func TestStopAll(t *testing.T) {
	s := NewScheduler(zerolog.Nop())

	s.Start("dashboard", time.Hour, func(ctx context.Context) {})
	s.Start("account", time.Hour, func(ctx context.Context) {})
	assert.Equal(t, 2, s.Active())

	s.StopAll()
	assert.Equal(t, 0, s.Active())
}
