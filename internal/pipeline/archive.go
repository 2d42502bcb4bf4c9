// Package pipeline runs the background jobs that sit beside the trading
// loops. Today that is the cold-storage export of trade history.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tailbot/internal/domain"
)

// ArchiveJob exports trades to object storage on a cron schedule. Each run
// covers the trades recorded since the previous successful run.
type ArchiveJob struct {
	archiver domain.Archiver
	schedule Schedule
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	cursor time.Time
}

// NewArchiveJob parses cronExpr and builds the job. The first run exports
// the trades of the preceding lookback.
func NewArchiveJob(archiver domain.Archiver, cronExpr string, lookback time.Duration, logger *slog.Logger) (*ArchiveJob, error) {
	sched, err := ParseSchedule(cronExpr)
	if err != nil {
		return nil, err
	}
	j := &ArchiveJob{
		archiver: archiver,
		schedule: sched,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "archive")),
	}
	j.cursor = j.now().UTC().Add(-lookback)
	return j, nil
}

// RunOnce exports everything since the cursor and advances it on success.
func (j *ArchiveJob) RunOnce(ctx context.Context) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	started := j.now().UTC()
	n, err := j.archiver.ArchiveTrades(ctx, j.cursor)
	if err != nil {
		return 0, fmt.Errorf("pipeline: archive trades since %s: %w", j.cursor.Format(time.RFC3339), err)
	}
	j.logger.InfoContext(ctx, "pipeline: trades archived",
		slog.Int64("count", n),
		slog.Time("since", j.cursor),
	)
	j.cursor = started
	return n, nil
}

// Run fires RunOnce at every schedule match until ctx ends. Failed runs are
// logged and retried at the next match with the same cursor.
func (j *ArchiveJob) Run(ctx context.Context) error {
	for {
		next, err := j.schedule.Next(j.now().UTC())
		if err != nil {
			return err
		}
		j.logger.DebugContext(ctx, "pipeline: next archive run", slog.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if _, err := j.RunOnce(ctx); err != nil {
				j.logger.ErrorContext(ctx, "pipeline: archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
