// Package scheduler runs the periodic background jobs of the service.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of background work. now is the scheduler's clock reading
// when the job fired.
type Job interface {
	Name() string
	Run(ctx context.Context, now time.Time) error
}

// JobFunc adapts a function to Job
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context, now time.Time) error
}

// Name implements Job
func (j JobFunc) Name() string { return j.JobName }

// Run implements Job
func (j JobFunc) Run(ctx context.Context, now time.Time) error { return j.Fn(ctx, now) }

// Schedule decides when a job is due
type Schedule interface {
	// Due reports whether the job should run at now given its last run.
	// last is zero before the first run.
	Due(last, now time.Time) bool
	String() string
}

// Daily fires once per UTC calendar day, at the first check on or after
// Hour:Minute. A process started later in the day still runs that day's job.
type Daily struct {
	Hour   int
	Minute int
}

// Due implements Schedule
func (d Daily) Due(last, now time.Time) bool {
	now = now.UTC()
	if !last.IsZero() && sameDay(last.UTC(), now) {
		return false
	}
	fire := time.Date(now.Year(), now.Month(), now.Day(), d.Hour, d.Minute, 0, 0, time.UTC)
	return !now.Before(fire)
}

func (d Daily) String() string { return fmt.Sprintf("daily@%02d:%02dZ", d.Hour, d.Minute) }

// Every fires when Interval has elapsed since the last run, and on the first check
type Every struct {
	Interval time.Duration
}

// Due implements Schedule
func (e Every) Due(last, now time.Time) bool {
	return last.IsZero() || now.Sub(last) >= e.Interval
}

func (e Every) String() string { return "every " + e.Interval.String() }

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Config holds scheduler configuration
type Config struct {
	// CheckInterval is how often schedules are evaluated
	CheckInterval time.Duration
	// JobTimeout bounds a single job run
	JobTimeout time.Duration
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		CheckInterval: time.Minute,
		JobTimeout:    10 * time.Minute,
	}
}

type entry struct {
	job      Job
	schedule Schedule
	lastRun  time.Time
}

// Scheduler runs registered jobs from one loop goroutine, so runs of the same
// job never overlap.
type Scheduler struct {
	config Config
	clock  func() time.Time
	logger *zap.Logger

	mu        sync.Mutex
	entries   []*entry
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
}

// New creates a Scheduler
func New(config Config, logger *zap.Logger) *Scheduler {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = DefaultConfig().JobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		config: config,
		clock:  func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Register adds job with schedule. It must be called before Start.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if e, ok := schedule.(Every); ok && e.Interval <= 0 {
		return fmt.Errorf("%w: job %s has non-positive interval", ErrInvalidConfig, job.Name())
	}
	if d, ok := schedule.(Daily); ok && (d.Hour < 0 || d.Hour > 23 || d.Minute < 0 || d.Minute > 59) {
		return fmt.Errorf("%w: job %s has invalid time of day", ErrInvalidConfig, job.Name())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return ErrAlreadyRunning
	}
	s.entries = append(s.entries, &entry{job: job, schedule: schedule})
	return nil
}

// Start launches the check loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Scheduler started",
		zap.Int("jobs", len(s.entries)),
		zap.Duration("check_interval", s.config.CheckInterval))
	return nil
}

// Stop cancels the loop and waits for the running job, bounded by ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	s.tick(ctx)
	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs every job that is due
func (s *Scheduler) tick(ctx context.Context) {
	for _, e := range s.entries {
		if ctx.Err() != nil {
			return
		}
		now := s.clock()
		if !e.schedule.Due(e.lastRun, now) {
			continue
		}
		e.lastRun = now
		s.run(ctx, e, now)
	}
}

func (s *Scheduler) run(ctx context.Context, e *entry, now time.Time) {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Job panicked", zap.String("job", e.job.Name()), zap.Any("panic", r))
		}
	}()

	start := time.Now()
	s.logger.Info("Running job", zap.String("job", e.job.Name()), zap.String("schedule", e.schedule.String()))
	if err := e.job.Run(jobCtx, now); err != nil {
		s.logger.Error("Job failed",
			zap.String("job", e.job.Name()),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	s.logger.Info("Job completed",
		zap.String("job", e.job.Name()),
		zap.Duration("duration", time.Since(start)))
}
