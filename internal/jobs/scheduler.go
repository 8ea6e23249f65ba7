package jobs

import (
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// Scheduler wraps gocron for the background sweepers. Jobs are either
// interval-based or cron-expression based; expressions are validated at
// registration so a bad config fails startup instead of silently never
// firing.
type Scheduler struct {
	scheduler gocron.Scheduler
}

func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// Every registers an interval job.
func (s *Scheduler) Every(name string, interval time.Duration, task func()) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}
	log.Printf("⏰ [SCHEDULER] Registered %s (every %v)", name, interval)
	return nil
}

// Cron registers a job from a standard five-field cron expression.
func (s *Scheduler) Cron(name, expression string, task func()) error {
	if _, err := cron.ParseStandard(expression); err != nil {
		return fmt.Errorf("invalid cron expression %q for job %s: %w", expression, name, err)
	}
	_, err := s.scheduler.NewJob(
		gocron.CronJob(expression, false),
		gocron.NewTask(task),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}
	log.Printf("⏰ [SCHEDULER] Registered %s (%s)", name, expression)
	return nil
}

// Start launches all registered jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	log.Printf("🚀 [SCHEDULER] Started with %d jobs", len(s.scheduler.Jobs()))
}

// Shutdown stops the scheduler, waiting for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}
