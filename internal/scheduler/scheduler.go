// Package scheduler runs the dashboard's timers on gocron.
package scheduler

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler runs repeating and one-shot jobs.
type Scheduler struct {
	scheduler *gocron.Scheduler
}

// New creates and starts a Scheduler.
func New() *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.StartAsync()
	return &Scheduler{scheduler: s}
}

// Every runs fn each interval, starting one interval from now. Overlapping
// runs of the same job are skipped. The returned func cancels the job.
func (s *Scheduler) Every(interval time.Duration, name string, fn func()) (func(), error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler: %s: interval must be positive", name)
	}
	job, err := s.scheduler.Every(interval).Tag(name).SingletonMode().WaitForSchedule().Do(func() {
		log.Printf("DEBUG: scheduler: running %s", name)
		fn()
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: %s: %w", name, err)
	}
	return func() { s.scheduler.RemoveByReference(job) }, nil
}

// After runs fn once, delay from now. The returned func cancels it if it has
// not run yet.
func (s *Scheduler) After(delay time.Duration, name string, fn func()) (func(), error) {
	if delay <= 0 {
		return nil, fmt.Errorf("scheduler: %s: delay must be positive", name)
	}
	job, err := s.scheduler.Every(delay).Tag(name).WaitForSchedule().LimitRunsTo(1).Do(func() {
		log.Printf("DEBUG: scheduler: running %s", name)
		fn()
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: %s: %w", name, err)
	}
	return func() { s.scheduler.RemoveByReference(job) }, nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
