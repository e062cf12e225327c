// Package pipeline implements C10: the full-app refresh pipeline, an
// ordered sequence of phases run under a cooperative-cancellation state
// machine and, optionally, a cron-driven trigger.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is a run's position in the Idle -> Running -> (Stopping?) -> Done
// state machine.
type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateDone     State = "done"
)

// Outcome is the terminal result of a Done run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeStopped Outcome = "stopped"
)

// DefaultPhaseOrder is the declared phase sequence for a full refresh run.
var DefaultPhaseOrder = []string{
	"home_dashboard", "broker_positions", "broker_orders", "broker_account",
	"scanner_suite", "regime_refresh", "signals_refresh", "source_health_refresh",
}

// Phase describes one step of a run: its run function, timeout, and failure
// policy (critical stops the run, optional failures are logged and don't
// count toward warnings, non-critical non-optional failures continue and
// increment the run's warning count).
type Phase struct {
	ID       string
	Timeout  time.Duration
	Critical bool
	Optional bool
	Run      func(ctx context.Context) error
}

// PhaseResult is passed to onPhase exactly once per phase actually run.
type PhaseResult struct {
	ID         string
	OK         bool
	Error      error
	DurationMS int64
}

// RunReport summarizes one complete Run call.
type RunReport struct {
	Outcome    Outcome
	Phases     []PhaseResult
	Warnings   int
	Error      error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Pipeline runs a declared phase list and tracks a single in-flight run's
// state so Stop can cooperatively cancel it.
type Pipeline struct {
	log zerolog.Logger

	mu         sync.Mutex
	state      State
	cancelFunc context.CancelFunc
}

// New creates an idle Pipeline.
func New(log zerolog.Logger) *Pipeline {
	return &Pipeline{log: log.With().Str("component", "pipeline").Logger(), state: StateIdle}
}

// State returns the pipeline's current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Stop cancels the phase currently in flight, if any, and refuses to start
// any further phase in that run. It is a no-op when no run is in progress.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateRunning {
		return
	}
	p.state = StateStopping
	if p.cancelFunc != nil {
		p.cancelFunc()
	}
}

// Run executes phases in order under ctx, calling onPhase exactly once per
// phase that actually starts. Only one run may be in flight at a time; Run
// called while already running returns immediately with OutcomeFailed and
// the reason in RunReport.Error.
func (p *Pipeline) Run(ctx context.Context, phases []Phase, onPhase func(PhaseResult)) RunReport {
	p.mu.Lock()
	if p.state == StateRunning || p.state == StateStopping {
		p.mu.Unlock()
		return RunReport{Outcome: OutcomeFailed, Error: fmt.Errorf("pipeline already running")}
	}
	p.state = StateRunning
	p.mu.Unlock()

	report := RunReport{StartedAt: time.Now()}
	defer func() {
		report.FinishedAt = time.Now()
		p.mu.Lock()
		p.state = StateDone
		p.cancelFunc = nil
		p.mu.Unlock()
	}()

	for _, phase := range phases {
		p.mu.Lock()
		stopping := p.state == StateStopping
		p.mu.Unlock()
		if stopping {
			report.Outcome = OutcomeStopped
			return report
		}

		phaseCtx, cancel := context.WithTimeout(ctx, phase.Timeout)
		p.mu.Lock()
		p.cancelFunc = cancel
		p.mu.Unlock()

		start := time.Now()
		err := phase.Run(phaseCtx)
		cancel()

		result := PhaseResult{ID: phase.ID, OK: err == nil, Error: err, DurationMS: time.Since(start).Milliseconds()}
		if onPhase != nil {
			onPhase(result)
		}
		report.Phases = append(report.Phases, result)

		if err == nil {
			continue
		}

		if p.State() == StateStopping {
			report.Outcome = OutcomeStopped
			return report
		}

		if phase.Critical {
			p.log.Error().Err(err).Str("phase", phase.ID).Msg("critical phase failed, stopping pipeline")
			report.Outcome = OutcomeFailed
			report.Error = fmt.Errorf("phase %s: %w", phase.ID, err)
			return report
		}
		if phase.Optional {
			p.log.Warn().Err(err).Str("phase", phase.ID).Msg("optional phase failed, continuing")
			continue
		}
		p.log.Warn().Err(err).Str("phase", phase.ID).Msg("non-critical phase failed, continuing with warning")
		report.Warnings++
	}

	if p.State() == StateStopping {
		report.Outcome = OutcomeStopped
		return report
	}
	report.Outcome = OutcomeSuccess
	return report
}
