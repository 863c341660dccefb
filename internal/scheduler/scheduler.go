// Package scheduler runs periodic maintenance jobs on cron expressions.
package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Standard 5-field expressions (min, hour, dom, month, dow) plus descriptors such as @every 1m.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether expr is an accepted schedule.
func Validate(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Scheduler provides cron-based job scheduling. A panicking job is recovered and logged.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules task under name. It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(name, expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, func() {
		start := time.Now()
		task()
		slog.Debug("Scheduler.AddJob: job finished", "job", name, "elapsed", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	slog.Info("Scheduler.AddJob: job scheduled", "job", name, "schedule", expr)
	return nil
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int { return len(s.cron.Entries()) }

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
