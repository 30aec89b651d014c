// Package scheduler decides when Shanbot replies and runs its periodic jobs.
//
// ComputeDelay and Planner turn a subscriber's reply history into a human-looking
// send time. Scheduler runs background jobs, such as the analytics export, on cron
// expressions.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the standard 5-field form (min, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron reports whether expr is a valid 5-field cron expression.
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler. Overlapping runs of the same job are skipped.
func NewScheduler() *Scheduler {
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules task under name using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(name, expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, func() {
		start := time.Now()
		task()
		slog.Debug("Scheduler.job: finished", "job", name, "elapsed", time.Since(start))
	})
	if err != nil {
		slog.Error("Scheduler.AddJob: invalid expression", "job", name, "expr", expr, "error", err)
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	slog.Info("Scheduler.AddJob: job scheduled", "job", name, "expr", expr)
	return nil
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
