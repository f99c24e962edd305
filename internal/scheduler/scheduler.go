// Package scheduler runs the periodic maintenance jobs.
package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/axellelanca/trafficstats/internal/repository"
	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron instance and the dependencies of its jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	traffic       repository.TrafficRepository
	retentionDays int
	retentionSpec string
}

// NewScheduler creates a scheduler whose jobs run with panic recovery, structured
// logging and no overlapping runs. Specs use the six-field format with seconds.
func NewScheduler(traffic repository.TrafficRepository, retentionDays int, retentionSpec string) *Scheduler {
	logger := slog.Default().With("system", "cron")
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(jobWrappers(logger)...),
	)
	return &Scheduler{
		cron:          c,
		logger:        logger,
		traffic:       traffic,
		retentionDays: retentionDays,
		retentionSpec: retentionSpec,
	}
}

// RegisterJobs adds every enabled job and returns how many were registered.
func (s *Scheduler) RegisterJobs() (int, error) {
	registered := 0

	if s.retentionDays > 0 {
		if _, err := s.cron.AddJob(s.retentionSpec, NewRetentionJob(s.traffic, s.retentionDays)); err != nil {
			return registered, fmt.Errorf("failed to add RetentionJob: %w", err)
		}
		registered++
		s.logger.Info("registered RetentionJob",
			slog.String("schedule", s.retentionSpec),
			slog.Int("days", s.retentionDays))
	} else {
		s.logger.Info("traffic retention disabled")
	}

	return registered, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.logger.Info("cron scheduler started")
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping cron scheduler")
	<-s.cron.Stop().Done()
	s.logger.Info("cron scheduler stopped")
}
