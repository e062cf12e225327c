// Package providers models C1, the abstract access point to market data and
// model inference. Real wire protocols (Finnhub, Yahoo, Tradier, FRED, the
// model-analysis service) are out of scope; this package defines
// the capability surface plus a demo in-memory implementation used by the
// rest of the engine and by tests.
package providers

import "context"

// Candidate is a raw scanner record, keyed loosely: always a
// symbol, a strategy tag, and a computed map of canonical metrics, plus
// whatever strategy-specific keys the producing scanner emits.
type Candidate struct {
	Symbol     string
	StrategyID string
	Computed   map[string]float64
	Fields     map[string]interface{}
}

// RegimeComponent is one scored input to the regime classification.
type RegimeComponent struct {
	Score   float64
	Signals []string
}

// Regime is C1's GetRegime result, consumed by C7 as a ranker fallback.
type Regime struct {
	Label      string
	Score      float64
	Components map[string]RegimeComponent
	Suggested  SuggestedPlaybook
}

// SuggestedPlaybook is the regime's own lightweight lane suggestion
// (primary+avoid only; secondary stays empty).
type SuggestedPlaybook struct {
	Primary []string
	Avoid   []string
	Notes   []string
}

// PlaybookLaneEntry is one strategy entry within an enriched playbook lane.
type PlaybookLaneEntry struct {
	Strategy   string
	Label      string
	Confidence float64
	Why        []string
}

// Playbook is C1's GetPlaybook result: the enriched, regime-aware lane sets
// consumed by C7.
type Playbook struct {
	Primary   []PlaybookLaneEntry
	Secondary []PlaybookLaneEntry
	Avoid     []PlaybookLaneEntry
	Notes     []string
}

// Signal is one named market signal from C1's GetSignals.
type Signal struct {
	Name    string
	Value   float64
	Message string
}

// SourceHealth is one provider's observed health for /api/health/sources.
type SourceHealth struct {
	Status   string // green, yellow, red
	Message  string
	LastHTTP int
}

// ModelEvaluation is the model-analysis service's verdict on a trade.
type ModelEvaluation struct {
	Recommendation string // ACCEPT, REJECT, NEUTRAL, ERROR
	Confidence     *float64
	Summary        string
	RiskLevel      string
	KeyFactors     []string
}

// ReportMeta describes one persisted strategy report file.
type ReportMeta struct {
	Name        string
	GeneratedAt string
}

// Report is one strategy report's payload as returned by FetchReport.
type Report struct {
	Trades    []Candidate
	Stats     map[string]interface{}
	Generated string
}

// MarketProvider is the abstract capability surface of C1. Every method
// returns a *Error (see errors.go) on failure so callers never need to
// inspect wire-level details.
type MarketProvider interface {
	// Tag identifies this provider for C2's per-provider pacing.
	Tag() string
	FetchStockScanner(ctx context.Context, symbols []string) ([]Candidate, error)
	GenerateStrategyReport(ctx context.Context, strategyID string, params map[string]string) ([]Candidate, error)
	GetRegime(ctx context.Context) (Regime, error)
	GetPlaybook(ctx context.Context, regime Regime) (Playbook, error)
	GetSignals(ctx context.Context) ([]Signal, error)
	GetSourceHealth(ctx context.Context) (SourceHealth, error)
	ListReports(ctx context.Context, strategyID string) ([]ReportMeta, error)
	FetchReport(ctx context.Context, strategyID, name string) (Report, error)
}

// ModelAnalyzer is the abstract model-inference capability of C1.
type ModelAnalyzer interface {
	Tag() string
	AnalyzeTrade(ctx context.Context, trade Candidate, source string) (ModelEvaluation, error)
}
