// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"sync"
	"time"

	"pcots-notifications/internal/common/logger"
)

// Handler is one sweep run. Handlers own their error handling; anything they
// return to the scheduler is already logged.
type Handler func(ctx context.Context)

// Job pairs a trigger interval with a handler. Jobs are fixed at
// construction; there is no API to reconfigure schedules at runtime.
type Job struct {
	Name     string
	Interval time.Duration
	Handler  Handler
}

// Scheduler runs each registered job on its own ticker goroutine. It holds
// no global state: construct, Start, Stop.
type Scheduler struct {
	jobs       []Job
	logger     logger.Logger
	runOnStart bool

	mu      sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New builds a scheduler from its job list. Nothing runs until Start.
func New(log logger.Logger, runOnStart bool, jobs ...Job) *Scheduler {
	return &Scheduler{
		jobs:       jobs,
		logger:     log.WithFields(map[string]interface{}{"component": "scheduler"}),
		runOnStart: runOnStart,
		stopCh:     make(chan struct{}),
	}
}

// Jobs returns the registered jobs. Tests invoke handlers from here directly
// instead of waiting on real timers.
func (s *Scheduler) Jobs() []Job {
	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Start launches one goroutine per job.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.run(job)
	}

	s.logger.Info("scheduler started", map[string]interface{}{"jobs": len(s.jobs)})
}

// Stop cancels all job timers and waits for in-flight runs to return. A run
// already past its trigger cannot be aborted mid-flight.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped", nil)
}

func (s *Scheduler) run(job Job) {
	defer s.wg.Done()

	interval := job.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if s.runOnStart {
		s.fire(job)
	}

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.fire(job)
		}
	}
}

// fire executes one run, recovering panics so a bad run cannot kill the
// job's timer loop.
func (s *Scheduler) fire(job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", map[string]interface{}{
				"job":   job.Name,
				"panic": r,
			})
		}
	}()

	job.Handler(context.Background())
}
