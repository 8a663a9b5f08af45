// Package scheduler runs each pipeline job on its own fixed interval. A Redis
// lease keeps at most one run of a job in flight across instances.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"rating-notifier/internal/common/logger"
	"rating-notifier/internal/common/metrics"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrLeaseHeld  = errors.New("job lease held by another run")
)

// Job is one scheduled controller. Run reports its own failures and never
// returns them to the scheduler.
type Job interface {
	Run(ctx context.Context)
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context)

func (f JobFunc) Run(ctx context.Context) { f(ctx) }

type entry struct {
	name     string
	job      Job
	interval time.Duration
	lockTTL  time.Duration
}

type Scheduler struct {
	locker Locker
	logger logger.Logger

	mu      sync.Mutex
	entries map[string]*entry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(locker Locker, log logger.Logger) *Scheduler {
	if locker == nil {
		locker = NoopLocker{}
	}
	return &Scheduler{
		locker:  locker,
		logger:  log.WithFields(map[string]interface{}{"component": "scheduler"}),
		entries: make(map[string]*entry),
	}
}

// Register adds job under name. lockTTL bounds how long a crashed run can
// block the next one; it defaults to five intervals.
func (s *Scheduler) Register(name string, job Job, interval, lockTTL time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if lockTTL <= 0 {
		lockTTL = interval * 5
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	s.entries[name] = &entry{name: name, job: job, interval: interval, lockTTL: lockTTL}
	return nil
}

// Jobs lists registered job names in sorted order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches one loop per registered job. Each loop runs immediately and
// then on every tick until Stop or ctx cancellation.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(ctx, e)
		s.logger.Info("Job scheduled", map[string]interface{}{
			"job":      e.name,
			"interval": e.interval.String(),
		})
	}
}

// Stop cancels all loops and waits for in-flight runs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped", nil)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// RunOnce runs the named job a single time under its lease.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.run(ctx, e)
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	_ = s.run(ctx, e)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.run(ctx, e)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, e *entry) error {
	lease, ok, err := s.locker.Acquire(ctx, e.name, e.lockTTL)
	if err != nil {
		metrics.JobRuns.WithLabelValues(e.name, metrics.OutcomeSkipped).Inc()
		s.logger.Warn("Could not acquire job lease", map[string]interface{}{
			"job":   e.name,
			"error": err.Error(),
		})
		return err
	}
	if !ok {
		metrics.JobRuns.WithLabelValues(e.name, metrics.OutcomeSkipped).Inc()
		s.logger.Debug("Job lease held elsewhere, skipping tick", map[string]interface{}{"job": e.name})
		return ErrLeaseHeld
	}

	defer func() {
		// Release even if the run context was cancelled mid-flight.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			s.logger.Warn("Could not release job lease", map[string]interface{}{
				"job":   e.name,
				"error": err.Error(),
			})
		}
	}()

	metrics.JobsActive.WithLabelValues(e.name).Inc()
	defer metrics.JobsActive.WithLabelValues(e.name).Dec()

	start := time.Now()
	e.job.Run(ctx)
	metrics.JobDuration.WithLabelValues(e.name).Observe(time.Since(start).Seconds())
	return nil
}
