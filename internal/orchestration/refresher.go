package orchestration

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Refresher periodically reconciles every enabled host so metadata follows
// the engines even when nobody is reading.
type Refresher struct {
	manager  *Manager
	interval time.Duration
	logger   zerolog.Logger
}

// NewRefresher creates a refresher. An interval of zero disables Run.
func NewRefresher(m *Manager, interval time.Duration, logger zerolog.Logger) *Refresher {
	return &Refresher{
		manager:  m,
		interval: interval,
		logger:   logger,
	}
}

// Run refreshes once immediately and then on every tick until ctx is done.
func (r *Refresher) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Debug().Msg("periodic refresh disabled")
		return
	}

	r.logger.Info().Dur("interval", r.interval).Msg("periodic refresh started")
	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("periodic refresh stopped")
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	start := time.Now()
	failed, err := r.manager.RefreshAll(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("periodic refresh failed")
		return
	}
	r.logger.Debug().Int("failed_hosts", failed).Dur("took", time.Since(start)).Msg("periodic refresh done")
}
