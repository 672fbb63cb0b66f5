package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// =============================================================================
// StaleJobScheduler - fails RUNNING jobs abandoned by a crashed worker
// =============================================================================

// Sweeper marks stale jobs FAILED and reports how many it marked.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

type StaleJobScheduler struct {
	sweeper       Sweeper
	checkInterval time.Duration
	sweepTimeout  time.Duration
	log           zerolog.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	done          chan struct{}
}

func NewStaleJobScheduler(sweeper Sweeper, interval time.Duration, log zerolog.Logger) *StaleJobScheduler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StaleJobScheduler{
		sweeper:       sweeper,
		checkInterval: interval,
		sweepTimeout:  2 * time.Minute,
		log:           log.With().Str("component", "stale_job_scheduler").Logger(),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
}

// Start sweeps once immediately, then on every tick.
func (s *StaleJobScheduler) Start() {
	s.log.Info().Dur("interval", s.checkInterval).Msg("starting")
	go s.run()
}

// Stop stops the loop and waits for an in-flight sweep.
func (s *StaleJobScheduler) Stop() {
	s.cancel()
	<-s.done
}

func (s *StaleJobScheduler) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *StaleJobScheduler) sweep() {
	ctx, cancel := context.WithTimeout(s.ctx, s.sweepTimeout)
	defer cancel()

	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.log.Error().Err(err).Msg("stale job sweep failed")
	}
}
