// Package scanner implements C6: the scanner orchestrator that fans a
// symbol universe out across stock and options scanners, normalizes their
// results, and returns a ranked top-N slice.
package scanner

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/sorelab/sore/internal/normalize"
	"github.com/sorelab/sore/internal/providers"
	"github.com/sorelab/sore/internal/ratelimit"
)

// TopN is the number of opportunities a scanner suite run returns.
const TopN = 9

// FilterLevel scales every step's timeout.
type FilterLevel string

const (
	LevelStrict       FilterLevel = "strict"
	LevelConservative FilterLevel = "conservative"
	LevelBalanced     FilterLevel = "balanced"
	LevelWide         FilterLevel = "wide"
)

func (l FilterLevel) multiplier() float64 {
	switch l {
	case LevelStrict:
		return 0.8
	case LevelWide:
		return 1.4
	default:
		return 1.0
	}
}

// StepDef describes one scanner in the declared suite.
type StepDef struct {
	ID            string
	Label         string
	ProviderTag   string
	SourceType    normalize.SourceType
	Optional      bool
	BaseTimeout   time.Duration
	Run           func(ctx context.Context) ([]providers.Candidate, error)
}

// DefaultSteps is the declared suite order: stock scanner first (loosest
// pacing), then options scanners in declaration order.
var DefaultSteps = []string{
	"stock_scanner", "credit_put", "credit_call", "iron_condor",
	"debit_spreads", "butterflies", "income", "calendar",
}

// StepResult is passed to onStep exactly once per step.
type StepResult struct {
	ID         string
	Label      string
	OK         bool
	Error      error
	TradeCount int
}

// RunError records one step's failure.
type RunError struct {
	StepID  string
	Message string
}

// ScanMeta summarizes a suite run.
type ScanMeta struct {
	RanAt           time.Time
	DurationMS      int64
	ScannersRun     int
	ScannersFailed  int
	TotalCandidates int
	TopN            int
}

// RunResult is RunScannerSuite's return value.
type RunResult struct {
	Opportunities []normalize.Opportunity
	AllCandidates []normalize.Opportunity
	Meta          ScanMeta
	Errors        []RunError
	Partial       bool
}

// Orchestrator runs the declared scanner suite through C2's pacing lane.
type Orchestrator struct {
	limiter *ratelimit.Limiter
	log     zerolog.Logger
}

// New creates an Orchestrator backed by limiter.
func New(limiter *ratelimit.Limiter, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{limiter: limiter, log: log.With().Str("component", "scanner").Logger()}
}

// RunScannerSuite runs steps (in slice order) under level's timeout
// multiplier, normalizing and concatenating every successful step's
// candidates, then returns the top TopN by the base sort (score desc,
// liquidity desc nulls-last, ev desc nulls-last). onStep is invoked exactly
// once per step that runs, in execution order; steps never reached because
// a non-optional step failed upstream (or ctx was cancelled) get no call.
func (o *Orchestrator) RunScannerSuite(ctx context.Context, steps []StepDef, level FilterLevel, onStep func(StepResult)) RunResult {
	start := time.Now()
	result := RunResult{}

	var all []normalize.Opportunity
	ran, failed := 0, 0

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, RunError{StepID: step.ID, Message: "cancelled: " + err.Error()})
			break
		}

		timeout := time.Duration(float64(step.BaseTimeout) * level.multiplier())
		stepCtx, cancel := context.WithTimeout(ctx, timeout)

		var candidates []providers.Candidate
		err := o.limiter.RunStep(stepCtx, step.ProviderTag, step.Label, func(runCtx context.Context) error {
			c, runErr := step.Run(runCtx)
			candidates = c
			return runErr
		})
		cancel()

		ran++
		if err != nil {
			failed++
			result.Errors = append(result.Errors, RunError{StepID: step.ID, Message: err.Error()})
			if onStep != nil {
				onStep(StepResult{ID: step.ID, Label: step.Label, OK: false, Error: err})
			}
			if step.Optional {
				result.Partial = true
				continue
			}
			result.Meta = buildMeta(start, ran, failed, len(all))
			return result
		}

		opps := make([]normalize.Opportunity, 0, len(candidates))
		for _, c := range candidates {
			opps = append(opps, normalize.Normalize(c, step.ID, step.SourceType))
		}
		all = append(all, opps...)

		if onStep != nil {
			onStep(StepResult{ID: step.ID, Label: step.Label, OK: true, TradeCount: len(opps)})
		}
	}

	result.AllCandidates = all
	sorted := append([]normalize.Opportunity(nil), all...)
	sort.SliceStable(sorted, func(i, j int) bool { return baseLess(sorted[i], sorted[j]) })

	if len(sorted) > TopN {
		sorted = sorted[:TopN]
	}
	result.Opportunities = sorted
	result.Meta = buildMeta(start, ran, failed, len(all))
	return result
}

func buildMeta(start time.Time, ran, failed, total int) ScanMeta {
	return ScanMeta{
		RanAt:           start,
		DurationMS:      time.Since(start).Milliseconds(),
		ScannersRun:     ran,
		ScannersFailed:  failed,
		TotalCandidates: total,
		TopN:            TopN,
	}
}

// baseLess orders a before b under the base (pre-playbook) sort: score desc,
// liquidity desc (nulls last), ev desc (nulls last).
func baseLess(a, b normalize.Opportunity) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if c := compareNullableDesc(a.KeyMetrics.Liquidity, b.KeyMetrics.Liquidity); c != 0 {
		return c > 0
	}
	if c := compareNullableDesc(a.EV, b.EV); c != 0 {
		return c > 0
	}
	return false
}

// compareNullableDesc returns >0 if a should sort before b under a
// descending, nulls-last ordering, <0 if after, 0 if equivalent.
func compareNullableDesc(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a > *b:
		return 1
	case *a < *b:
		return -1
	default:
		return 0
	}
}
