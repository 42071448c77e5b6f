// Package refresh runs per-view periodic refresh loops. Each view that needs
// live data starts a schedule when it becomes active and stops it when left;
// a stopped schedule guarantees its timer is gone and any in-flight refresh
// resolves into a cancelled context, so it can no longer mutate caches.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Func is one refresh action. Implementations must honor ctx cancellation:
// a result that arrives after cancellation is discarded, not applied.
type Func func(ctx context.Context)

// Handle identifies one running schedule
type Handle struct {
	ID   string
	View string

	cancel context.CancelFunc
	done   chan struct{}
}

// Scheduler owns all active refresh loops.
type Scheduler struct {
	log zerolog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewScheduler creates an empty scheduler
func NewScheduler(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		log:     log.With().Str("component", "refresh_scheduler").Logger(),
		handles: make(map[string]*Handle),
	}
}

// Start begins a refresh loop for a view: one immediate run, then one run
// per interval. Runs on a single handle never overlap; if a run outlasts
// the interval the next one simply starts late. The returned handle is the
// only way to stop the loop.
func (s *Scheduler) Start(view string, interval time.Duration, fn Func) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	handle := &Handle{
		ID:     uuid.New().String(),
		View:   view,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	s.handles[handle.ID] = handle
	s.mu.Unlock()

	s.log.Info().Str("view", view).Str("handle", handle.ID).Dur("interval", interval).Msg("Refresh schedule started")

	go s.run(ctx, handle, interval, fn)
	return handle
}

// run is the loop goroutine. Sequential by construction: the ticker is only
// read between runs, so a slow refresh delays the next one instead of
// racing it.
func (s *Scheduler) run(ctx context.Context, handle *Handle, interval time.Duration, fn Func) {
	defer close(handle.done)

	fn(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			fn(ctx)
		}
	}
}

// Stop cancels a schedule and waits for its loop to exit. Safe to call more
// than once and with handles that were already stopped; the cancellation
// also poisons any refresh still in flight so its result is discarded.
func (s *Scheduler) Stop(handle *Handle) {
	if handle == nil {
		return
	}

	s.mu.Lock()
	_, active := s.handles[handle.ID]
	delete(s.handles, handle.ID)
	s.mu.Unlock()

	handle.cancel()
	<-handle.done

	if active {
		s.log.Info().Str("view", handle.View).Str("handle", handle.ID).Msg("Refresh schedule stopped")
	}
}

// StopAll stops every active schedule, used on shutdown
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		s.Stop(h)
	}
}

// Active returns the number of running schedules
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
