package tracker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"tracklight/internal/store"
)

// Sweeper periodically marks visitors inactive once they stop sending
// heartbeats. The interval must be shorter than the threshold, otherwise a
// record can stay "active" for more than one sweep period past its cutoff.
type Sweeper struct {
	store     store.Store
	interval  time.Duration
	threshold time.Duration
	log       zerolog.Logger
}

// NewSweeper creates a sweeper with the given timing constants.
func NewSweeper(st store.Store, interval, threshold time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{store: st, interval: interval, threshold: threshold, log: log}
}

// Run sweeps on a fixed ticker until ctx is canceled. Intended to run as a
// goroutine next to the HTTP server.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs a single pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.threshold)
	n, err := s.store.MarkInactiveBefore(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("visitor sweep failed")
		return
	}
	if n > 0 {
		s.log.Debug().Int64("count", n).Msg("marked visitors inactive")
	}
}
