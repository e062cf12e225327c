package providers

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sorelab/sore/internal/regime"
)

// DemoMarketProvider is a self-contained MarketProvider backed by synthetic
// data instead of a live wire protocol, so the rest of the engine (C2-C10)
// can be built, tested, and demonstrated without external network access or
// vendor credentials. It carries the same shape as a wire-backed client would
// (http.Client + scoped logger) so swapping in Finnhub/Yahoo/Tradier/FRED
// later only means writing a new type that satisfies MarketProvider.
type DemoMarketProvider struct {
	tag    string
	client *http.Client
	log    zerolog.Logger
	rng    *rand.Rand
}

// NewDemoMarketProvider creates a synthetic provider tagged tag, used by C2
// to key its per-provider pacing and by /api/health/sources to label rows.
func NewDemoMarketProvider(tag string, log zerolog.Logger, seed int64) *DemoMarketProvider {
	return &DemoMarketProvider{
		tag:    tag,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log.With().Str("provider", tag).Logger(),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (p *DemoMarketProvider) Tag() string { return p.tag }

func (p *DemoMarketProvider) FetchStockScanner(ctx context.Context, symbols []string) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewCancelled(p.tag, "FetchStockScanner", err)
	}
	out := make([]Candidate, 0, len(symbols))
	for _, sym := range symbols {
		out = append(out, Candidate{
			Symbol:     sym,
			StrategyID: "stock_scanner",
			Computed: map[string]float64{
				"price":        p.syntheticPrice(sym),
				"rsi14":        30 + p.rng.Float64()*40,
				"iv_rank":      p.rng.Float64() * 100,
				"volume_ratio": 0.5 + p.rng.Float64()*2,
			},
			Fields: map[string]interface{}{"symbol": sym},
		})
	}
	p.log.Debug().Int("count", len(out)).Msg("stock scanner fetched")
	return out, nil
}

func (p *DemoMarketProvider) GenerateStrategyReport(ctx context.Context, strategyID string, params map[string]string) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewCancelled(p.tag, "GenerateStrategyReport", err)
	}
	symbols := []string{"SPY", "QQQ", "IWM", "DIA"}
	out := make([]Candidate, 0, len(symbols))
	for _, sym := range symbols {
		shortStrike := p.syntheticPrice(sym) * 0.95
		longStrike := shortStrike - 5
		out = append(out, Candidate{
			Symbol:     sym,
			StrategyID: strategyID,
			Computed: map[string]float64{
				"short_strike":          shortStrike,
				"long_strike":           longStrike,
				"probability_of_profit": 0.5 + p.rng.Float64()*0.4,
				"return_on_risk":        0.1 + p.rng.Float64()*0.3,
				"dte":                   float64(7 + p.rng.Intn(38)),
			},
			Fields: map[string]interface{}{
				"expiration": time.Now().AddDate(0, 0, 14).Format("2006-01-02"),
			},
		})
	}
	return out, nil
}

// syntheticSeries builds a small basket of synthetic index closes so
// regime.Classify has something to score, without requiring a live feed.
func (p *DemoMarketProvider) syntheticSeries() []regime.Series {
	symbols := []string{"SPY", "QQQ", "IWM"}
	out := make([]regime.Series, 0, len(symbols))
	for _, sym := range symbols {
		closes := make([]float64, 60)
		price := p.syntheticPrice(sym)
		for i := range closes {
			price += p.rng.Float64()*2 - 1
			closes[i] = price
		}
		out = append(out, regime.Series{Symbol: sym, Closes: closes})
	}
	return out
}

func (p *DemoMarketProvider) GetRegime(ctx context.Context) (Regime, error) {
	if err := ctx.Err(); err != nil {
		return Regime{}, NewCancelled(p.tag, "GetRegime", err)
	}
	c := regime.Classify(p.syntheticSeries())

	components := make(map[string]RegimeComponent, len(c.Components))
	for name, comp := range c.Components {
		components[name] = RegimeComponent{Score: comp.Score, Signals: comp.Signals}
	}

	return Regime{
		Label:      c.Label,
		Score:      c.Score,
		Components: components,
		Suggested: SuggestedPlaybook{
			Primary: c.Suggested.Primary,
			Avoid:   c.Suggested.Avoid,
			Notes:   c.Suggested.Notes,
		},
	}, nil
}

func (p *DemoMarketProvider) GetPlaybook(ctx context.Context, rgm Regime) (Playbook, error) {
	if err := ctx.Err(); err != nil {
		return Playbook{}, NewCancelled(p.tag, "GetPlaybook", err)
	}
	return Playbook{
		Primary: []PlaybookLaneEntry{
			{Strategy: "credit_spreads", Label: "favored", Confidence: 0.7, Why: []string{"regime=" + rgm.Label}},
		},
		Secondary: []PlaybookLaneEntry{
			{Strategy: "iron_condor", Label: "acceptable", Confidence: 0.5},
		},
		Avoid: []PlaybookLaneEntry{
			{Strategy: "long_straddle", Label: "avoid", Confidence: 0.6, Why: []string{"low realized move expected"}},
		},
		Notes: []string{"derived from GetRegime, not an independent model call"},
	}, nil
}

func (p *DemoMarketProvider) GetSignals(ctx context.Context) ([]Signal, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewCancelled(p.tag, "GetSignals", err)
	}
	return []Signal{
		{Name: "vix_level", Value: 14 + p.rng.Float64()*10, Message: "implied volatility index"},
		{Name: "put_call_ratio", Value: 0.6 + p.rng.Float64()*0.6, Message: "equity put/call ratio"},
	}, nil
}

func (p *DemoMarketProvider) GetSourceHealth(ctx context.Context) (SourceHealth, error) {
	if err := ctx.Err(); err != nil {
		return SourceHealth{}, NewCancelled(p.tag, "GetSourceHealth", err)
	}
	return SourceHealth{Status: "green", Message: "synthetic source, always reachable", LastHTTP: 200}, nil
}

func (p *DemoMarketProvider) ListReports(ctx context.Context, strategyID string) ([]ReportMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewCancelled(p.tag, "ListReports", err)
	}
	return []ReportMeta{}, nil
}

func (p *DemoMarketProvider) FetchReport(ctx context.Context, strategyID, name string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, NewCancelled(p.tag, "FetchReport", err)
	}
	return Report{}, NewNotImplemented(p.tag, "FetchReport", fmt.Errorf("report %q not found for %s", name, strategyID))
}

// syntheticPrice derives a deterministic-ish base price from a symbol so
// repeated calls within a run stay internally consistent without needing a
// persisted fixture.
func (p *DemoMarketProvider) syntheticPrice(symbol string) float64 {
	sum := 0
	for _, c := range symbol {
		sum += int(c)
	}
	base := float64(50 + sum%450)
	return base + p.rng.Float64()*2
}

// DemoModelAnalyzer is a synthetic ModelAnalyzer, standing in for the
// model-analysis service out of scope.
type DemoModelAnalyzer struct {
	tag string
	log zerolog.Logger
	rng *rand.Rand
}

// NewDemoModelAnalyzer creates a synthetic analyzer tagged tag.
func NewDemoModelAnalyzer(tag string, log zerolog.Logger, seed int64) *DemoModelAnalyzer {
	return &DemoModelAnalyzer{tag: tag, log: log.With().Str("provider", tag).Logger(), rng: rand.New(rand.NewSource(seed))}
}

func (a *DemoModelAnalyzer) Tag() string { return a.tag }

func (a *DemoModelAnalyzer) AnalyzeTrade(ctx context.Context, trade Candidate, source string) (ModelEvaluation, error) {
	if err := ctx.Err(); err != nil {
		return ModelEvaluation{}, NewCancelled(a.tag, "AnalyzeTrade", err)
	}
	conf := a.rng.Float64()
	rec := "NEUTRAL"
	switch {
	case conf > 0.66:
		rec = "ACCEPT"
	case conf < 0.33:
		rec = "REJECT"
	}
	return ModelEvaluation{
		Recommendation: rec,
		Confidence:     &conf,
		Summary:        fmt.Sprintf("synthetic evaluation of %s via %s", trade.Symbol, source),
		RiskLevel:      "moderate",
		KeyFactors:     []string{"synthetic_confidence_score"},
	}, nil
}
