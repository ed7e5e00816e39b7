package history

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultPruneSchedule runs retention once a day at midnight.
	DefaultPruneSchedule = "@daily"

	// DefaultRetention keeps thirty days of history.
	DefaultRetention = 30 * 24 * time.Hour

	pruneTimeout = time.Minute
)

// Pruneable deletes rows older than a retention window.
// *SQLiteRepository satisfies it.
type Pruneable interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Pruner runs retention on a cron schedule.
type Pruner struct {
	cron      *cron.Cron
	target    Pruneable
	retention time.Duration
	logger    Logger
}

// NewPruner schedules target.Prune.
//
// Parameters:
//   - target: Store to prune
//   - schedule: Cron spec or descriptor; empty uses @daily
//   - retention: Age past which rows are deleted; zero uses 30 days
//   - logger: Optional logger
//
// Returns:
//   - *Pruner: Scheduled but not started
//   - error: If the schedule does not parse
func NewPruner(target Pruneable, schedule string, retention time.Duration, logger Logger) (*Pruner, error) {
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	if retention <= 0 {
		retention = DefaultRetention
	}

	p := &Pruner{
		cron:      cron.New(),
		target:    target,
		retention: retention,
		logger:    orNop(logger),
	}
	if _, err := p.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
		defer cancel()
		_, _ = p.RunOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("history: invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Start runs the scheduler in its own goroutine.
func (p *Pruner) Start() {
	p.cron.Start()
}

// Stop halts the scheduler and waits for a running prune, or ctx.
func (p *Pruner) Stop(ctx context.Context) {
	select {
	case <-p.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce prunes immediately.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	n, err := p.target.Prune(ctx, p.retention)
	if err != nil {
		p.logger.Error("history prune failed", "error", err)
		return 0, err
	}
	p.logger.Info("history pruned", "rows", n, "retention", p.retention.String())
	return n, nil
}
