package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/axellelanca/trafficstats/internal/repository"
)

// RetentionJob deletes traffic rows older than the retention period.
type RetentionJob struct {
	traffic repository.TrafficRepository
	days    int
	timeout time.Duration
	now     func() time.Time
}

// NewRetentionJob creates a job keeping the last days of traffic.
func NewRetentionJob(traffic repository.TrafficRepository, days int) *RetentionJob {
	return &RetentionJob{traffic: traffic, days: days, timeout: 10 * time.Minute, now: time.Now}
}

func (j *RetentionJob) Name() string {
	return "RetentionJob"
}

// Run implements cron.Job.
func (j *RetentionJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	if _, err := j.Purge(ctx); err != nil {
		slog.Error("traffic retention failed", slog.Any("error", err))
	}
}

// Purge deletes the expired rows and returns how many were removed.
func (j *RetentionJob) Purge(ctx context.Context) (int64, error) {
	cutoff := j.now().AddDate(0, 0, -j.days)
	deleted, err := j.traffic.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	slog.Info("purged old traffic",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff))
	return deleted, nil
}
