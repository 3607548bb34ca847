// Package scheduler periodically invokes a check function for each
// durability level, standing in for the Python original's crontab-based
// scheduler (original_source/libreary/scheduler.py). Rather than
// shelling out to cron, each level runs on its own time.Ticker for the
// lifetime of the process: the scheduler is an external collaborator
// to the Adapter Manager with a fixed contract (a level name, a
// frequency, a callable), not part of the core replication engine.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/libreary/libreary/internal/dcontext"
)

// Scheduler drives one periodic job per durability level.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]context.CancelFunc
	wg   sync.WaitGroup
}

// New returns an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{jobs: make(map[string]context.CancelFunc)}
}

// Schedule runs fn every frequency until the scheduler is stopped or
// Cancel(level) is called. Scheduling the same level again replaces
// its previous job. fn receives a cancelable Context derived from ctx
// (keeping any deadline ctx carries); cancellation of ctx itself stops
// every job scheduled against it.
func (s *Scheduler) Schedule(ctx context.Context, level string, frequency time.Duration, fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.jobs[level]; ok {
		cancel()
	}

	jobCtx, cancel := context.WithCancel(ctx)
	s.jobs[level] = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(frequency)
		defer ticker.Stop()

		for {
			select {
			case <-jobCtx.Done():
				return
			case <-ticker.C:
				if err := fn(jobCtx); err != nil {
					dcontext.GetLogger(jobCtx).Errorf("scheduler: check for level %s failed: %v", level, err)
				}
			}
		}
	}()
}

// Cancel stops the job scheduled for level, if any.
func (s *Scheduler) Cancel(level string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.jobs[level]; ok {
		cancel()
		delete(s.jobs, level)
	}
}

// Stop cancels every scheduled job and waits for their goroutines to
// exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for level, cancel := range s.jobs {
		cancel()
		delete(s.jobs, level)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
