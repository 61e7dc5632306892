// Package jobs runs background maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Pruner deletes audit rows older than the retention period
type Pruner interface {
	Prune(ctx context.Context, retentionDays int, now time.Time) error
}

// Retention prunes the evaluation audit log on a schedule
type Retention struct {
	pruner        Pruner
	retentionDays int
	timeout       time.Duration
	logger        *zap.Logger
	cron          *cron.Cron
	now           func() time.Time
}

// NewRetention creates a retention job
func NewRetention(pruner Pruner, retentionDays int, logger *zap.Logger) *Retention {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retention{
		pruner:        pruner,
		retentionDays: retentionDays,
		timeout:       5 * time.Minute,
		logger:        logger,
		cron:          cron.New(cron.WithLocation(time.UTC)),
		now:           time.Now,
	}
}

// Start schedules the job with a standard cron spec or descriptor like @daily
func (r *Retention) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	r.cron.Start()
	r.logger.Info("audit retention scheduled",
		zap.String("schedule", schedule),
		zap.Int("retention_days", r.retentionDays),
	)
	return nil
}

// Stop stops scheduling and waits for a running prune to finish
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce prunes immediately
func (r *Retention) RunOnce(ctx context.Context) error {
	return r.pruner.Prune(ctx, r.retentionDays, r.now())
}

func (r *Retention) run() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	started := time.Now()
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("audit prune failed", zap.Error(err))
		return
	}
	r.logger.Info("audit pruned", zap.Duration("took", time.Since(started)))
}
