package pipeline

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler triggers a Pipeline run on a cron schedule, adapted from the
// teacher's job scheduler: a *cron.Cron plus AddJob/Start/Stop, but with a
// single fixed job (the refresh pipeline) rather than an arbitrary Job
// registry, since C10 only ever schedules itself.
type Scheduler struct {
	cron     *cron.Cron
	pipeline *Pipeline
	phases   []Phase
	log      zerolog.Logger
}

// NewScheduler creates a Scheduler that runs pipeline's phases on schedule.
func NewScheduler(p *Pipeline, phases []Phase, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		pipeline: p,
		phases:   phases,
		log:      log.With().Str("component", "pipeline_scheduler").Logger(),
	}
}

// Start registers the refresh job under schedule (six-field cron syntax
// with a leading seconds field, e.g. "0 */5 * * * *" for every 5 minutes)
// and starts the cron loop.
func (s *Scheduler) Start(schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Msg("scheduled refresh starting")
		report := s.pipeline.Run(context.Background(), s.phases, nil)
		s.log.Info().Str("outcome", string(report.Outcome)).Int("warnings", report.Warnings).Msg("scheduled refresh finished")
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Str("schedule", schedule).Msg("pipeline scheduler started")
	return nil
}

// Stop stops the cron loop and, if a run is in flight, cooperatively
// cancels it.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	s.pipeline.Stop()
	<-ctx.Done()
	s.log.Info().Msg("pipeline scheduler stopped")
}

// RunNow triggers an out-of-schedule run immediately.
func (s *Scheduler) RunNow(ctx context.Context, onPhase func(PhaseResult)) RunReport {
	s.log.Info().Msg("running pipeline immediately")
	return s.pipeline.Run(ctx, s.phases, onPhase)
}
