package anim

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Run advances the sequencer from a ticker until ctx is done.
func (s *Sequencer) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Debug("animation driver started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("animation driver stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Advance(s.now())
		}
	}
}
