package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	probeTimeout = 5 * time.Second
	sweepSpec    = "0 */5 * * * *"
)

// Prober builds and health checks the shared clients, resetting dead ones.
type Prober interface {
	Probe(ctx context.Context) map[string]error
}

// Sweeper drops idle per-client limiter state.
type Sweeper interface {
	Sweep() int
}

type Scheduler struct {
	cron    *cron.Cron
	prober  Prober
	sweeper Sweeper
	log     zerolog.Logger
}

func NewScheduler(prober Prober, sweeper Sweeper, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:    c,
		prober:  prober,
		sweeper: sweeper,
		log:     log.With().Str("component", "jobs").Logger(),
	}
}

// Start schedules the client probe on probeSpec, a six-field cron expression.
func (s *Scheduler) Start(probeSpec string) error {
	if s.prober != nil {
		if _, err := s.cron.AddFunc(probeSpec, s.probeClients); err != nil {
			return fmt.Errorf("schedule client probe: %w", err)
		}
	}
	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(sweepSpec, s.sweepThrottle); err != nil {
			return fmt.Errorf("schedule throttle sweep: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) probeClients() {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	failed := 0
	for name, err := range s.prober.Probe(ctx) {
		if err != nil {
			failed++
			s.log.Warn().Err(err).Str("client", name).Msg("client unhealthy")
		}
	}
	if failed == 0 {
		s.log.Debug().Msg("clients healthy")
	}
}

func (s *Scheduler) sweepThrottle() {
	if removed := s.sweeper.Sweep(); removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("throttle entries swept")
	}
}
