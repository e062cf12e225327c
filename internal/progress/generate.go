package progress

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sorelab/sore/internal/playbook"
	"github.com/sorelab/sore/internal/reports"
	"github.com/sorelab/sore/internal/scanner"
)

// Generator implements C9's GenerateReport capability: running a scanner
// suite and playbook re-rank, reporting progress as it goes, and persisting
// the resulting report file.
type Generator struct {
	scanner *scanner.Orchestrator
	reports *reports.Store
	log     zerolog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(sc *scanner.Orchestrator, rs *reports.Store, log zerolog.Logger) *Generator {
	return &Generator{scanner: sc, reports: rs, log: log.With().Str("component", "progress").Logger()}
}

// GenerateParams carries one generate request's parameters.
type GenerateParams struct {
	StrategyID string
	Steps      []scanner.StepDef
	Level      scanner.FilterLevel
	Enriched   playbook.LaneSet
	Regime     playbook.LaneSet
}

// GenerateReport runs params' scanner suite and returns the channel an SSE
// handler should drain. The channel always closes after exactly one
// terminal event (done or error), or, on cancellation, without a terminal
// event once the producer observes the cancelled context.
func (g *Generator) GenerateReport(ctx context.Context, params GenerateParams) <-chan Event {
	return Run(ctx, func(ctx context.Context, out chan<- Event) {
		g.produce(ctx, params, NewEmitter(ctx, out))
	})
}

func (g *Generator) produce(ctx context.Context, params GenerateParams, em *Emitter) {
	if !em.Status("starting", fmt.Sprintf("generating report for %s", params.StrategyID)) {
		return
	}

	total := len(params.Steps)
	done := 0
	result := g.scanner.RunScannerSuite(ctx, params.Steps, params.Level, func(r scanner.StepResult) {
		done++
		if r.OK {
			em.Progress(r.ID, float64(done)/float64(max(total, 1))*100)
		} else {
			em.Status(r.ID, "step failed: "+r.Error.Error())
		}
	})

	if err := ctx.Err(); err != nil {
		return
	}

	if len(result.Opportunities) == 0 && len(result.Errors) > 0 {
		last := result.Errors[len(result.Errors)-1]
		em.Error(last.StepID, "ScanFailure", last.Message, "retry the scan once providers recover")
		return
	}

	if !em.Status("ranking", "applying playbook weighting") {
		return
	}
	ranked := playbook.Rank(result.Opportunities, params.Enriched, params.Regime)

	trades := make([]map[string]interface{}, 0, len(ranked))
	for _, r := range ranked {
		trades = append(trades, map[string]interface{}{
			"symbol":         r.Opportunity.Symbol,
			"strategy":       r.Opportunity.Strategy,
			"score":          r.Opportunity.Score,
			"adjusted_score": r.PB.AdjustedScore,
			"lane":           r.PB.Lane,
			"trade_key":      r.Opportunity.TradeKey,
			"trade":          r.Opportunity.Trade,
		})
	}

	report := reports.Report{
		Trades: trades,
		ReportStats: map[string]interface{}{
			"scanners_run":     result.Meta.ScannersRun,
			"scanners_failed":  result.Meta.ScannersFailed,
			"total_candidates": result.Meta.TotalCandidates,
			"duration_ms":      result.Meta.DurationMS,
		},
		Diagnostics: map[string]interface{}{
			"partial": result.Partial,
			"errors":  result.Errors,
		},
	}

	filename, err := g.reports.PersistReport(ctx, params.StrategyID, report)
	if err != nil {
		em.Error("persist", "PersistFailure", err.Error(), "check report directory permissions")
		return
	}

	if !em.Completed(filename, "report generated") {
		return
	}
	em.Done(filename)
}
