package history

import (
	"context"
	"time"
)

// Logger is the subset of the structured logger used by Pruner.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Pruner periodically removes transitions older than the retention period.
type Pruner struct {
	repo      *Repository
	retention time.Duration
	interval  time.Duration
	logger    Logger
}

// NewPruner creates a pruner. It does nothing until Run is called.
func NewPruner(repo *Repository, retention, interval time.Duration, logger Logger) *Pruner {
	return &Pruner{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Run prunes once immediately and then every interval until ctx is
// cancelled. A non-positive retention or interval disables pruning.
func (p *Pruner) Run(ctx context.Context) {
	if p.retention <= 0 || p.interval <= 0 {
		return
	}

	p.pruneOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pruneOnce(ctx)
		}
	}
}

func (p *Pruner) pruneOnce(ctx context.Context) {
	n, err := p.repo.Prune(ctx, p.retention)
	if err != nil {
		if ctx.Err() == nil && p.logger != nil {
			p.logger.Error("pruning transition history failed", "error", err)
		}
		return
	}
	if n > 0 && p.logger != nil {
		p.logger.Info("pruned transition history", "rows", n, "retention", p.retention.String())
	}
}
