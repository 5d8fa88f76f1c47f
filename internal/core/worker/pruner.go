package worker

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner removes audit entries past their retention window.
type Cleaner interface {
	Cleanup(ctx context.Context) (int, error)
}

// Pruner runs audit retention cleanup on a fixed schedule.
type Pruner struct {
	retention time.Duration
	cleaner   Cleaner
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, cleaner Cleaner) *Pruner {
	return &Pruner{
		retention: retention,
		cleaner:   cleaner,
	}
}

// Interval is 10% of the retention period, clamped to [1m, 1h].
func (p *Pruner) Interval() time.Duration {
	interval := min(p.retention/10, 1*time.Hour)
	return max(interval, 1*time.Minute)
}

// Start runs the pruner loop until ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	removed, err := p.cleaner.Cleanup(ctx)
	if err != nil {
		slog.Error("[Pruner] audit retention cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("[Pruner] pruned audit entries", "removed", removed, "retention", p.retention)
	}
}
