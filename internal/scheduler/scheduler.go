// Package scheduler runs named background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type Job func(ctx context.Context) error

type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]Job
}

// New creates a UTC scheduler. A job still running when its next tick fires
// is skipped for that tick.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	logger := cron.PrintfLogger(log.Default())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:    ctx,
		cancel: cancel,
		jobs:   map[string]Job{},
	}
}

// Add registers job under name with a standard five-field spec or a
// descriptor such as "@every 2m".
func (s *Scheduler) Add(spec, name string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %q already scheduled", name)
	}
	_, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("schedule %q (%s): %w", name, spec, err)
	}
	s.jobs[name] = job
	log.Printf("📅 Scheduled %s: %s (UTC)", name, spec)
	return nil
}

// Trigger runs a registered job immediately and waits for it.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return job(s.ctx)
}

func (s *Scheduler) run(name string, job Job) {
	log.Printf("🕘 Triggered %s", name)
	if err := job(s.ctx); err != nil {
		log.Printf("❌ %s failed: %v", name, err)
	}
}

func (s *Scheduler) Start() {
	if !s.IsRunning() {
		log.Println("⚠️ No jobs scheduled, scheduler idle")
		return
	}
	s.cron.Start()
	log.Println("📅 Scheduler started")
}

// Stop cancels the context passed to jobs, then waits for running jobs to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	log.Println("📅 Scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
