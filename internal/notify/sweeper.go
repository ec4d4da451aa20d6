package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// OverdueSweeper is implemented by the milestone service.
type OverdueSweeper interface {
	SweepOverdue() (int, error)
}

// RunOverdueSweeps calls SweepOverdue every interval until ctx is cancelled.
func RunOverdueSweeps(ctx context.Context, sweeper OverdueSweeper, interval time.Duration, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sweeper.SweepOverdue()
			if err != nil {
				log.Error("overdue sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("queued overdue notices", zap.Int("count", n))
			}
		}
	}
}
