// Package regime scores broad-market trend, volatility, breadth, and
// momentum into the regime label and lane suggestion C1's GetRegime exposes
// to the rest of the engine.
package regime

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Series is one symbol's recent daily closes, oldest first.
type Series struct {
	Symbol string
	Closes []float64
}

// Component is one scored input into a Classification, independent of any
// caller's own Regime representation so this package stays free of a
// dependency back on its consumers.
type Component struct {
	Score   float64
	Signals []string
}

// Suggestion is a lightweight primary/avoid lane hint derived directly from
// the regime label, with no secondary lane: enrichment into a full lane set
// is the ranker's job, not this package's.
type Suggestion struct {
	Primary []string
	Avoid   []string
	Notes   []string
}

// Classification is Classify's result.
type Classification struct {
	Label      string
	Score      float64
	Components map[string]Component
	Suggested  Suggestion
}

// Classify folds a basket of index/ETF series into a single Classification.
// It is grounded on a simple four-factor model: trend (mean EMA20
// distance), volatility (mean annualized stdev of returns), breadth (mean
// of +1 for each series trading above its own mean and -1 for each one that
// is not), and momentum (mean 10-day return).
func Classify(series []Series) Classification {
	if len(series) == 0 {
		return Classification{Label: "neutral", Score: 0, Components: map[string]Component{}}
	}

	trend := meanOf(series, trendScore)
	vol := meanOf(series, volatilityScore)
	breadth := meanOf(series, breadthScore)
	momentum := meanOf(series, momentumScore)

	score := clamp(0.4*trend+0.2*(1-vol)+0.2*breadth+0.2*momentum, -1, 1)

	label := "neutral"
	switch {
	case score > 0.33:
		label = "bullish"
	case score < -0.33:
		label = "bearish"
	}

	return Classification{
		Label: label,
		Score: score,
		Components: map[string]Component{
			"trend":      {Score: trend, Signals: []string{"mean_distance_from_ema20"}},
			"volatility": {Score: vol, Signals: []string{"mean_annualized_stdev"}},
			"breadth":    {Score: breadth, Signals: []string{"fraction_above_own_mean"}},
			"momentum":   {Score: momentum, Signals: []string{"mean_10d_return"}},
		},
		Suggested: suggest(label),
	}
}

func suggest(label string) Suggestion {
	switch label {
	case "bullish":
		return Suggestion{
			Primary: []string{"cash_secured_put", "bull_put_spread"},
			Avoid:   []string{"bear_call_spread"},
			Notes:   []string{"trend and breadth favor premium selling on the put side"},
		}
	case "bearish":
		return Suggestion{
			Primary: []string{"bear_call_spread"},
			Avoid:   []string{"cash_secured_put", "long_straddle"},
			Notes:   []string{"downside pressure disfavors naked put exposure"},
		}
	default:
		return Suggestion{
			Primary: []string{"iron_condor"},
			Avoid:   []string{},
			Notes:   []string{"no dominant trend or volatility signal"},
		}
	}
}

func meanOf(series []Series, f func(Series) float64) float64 {
	vals := make([]float64, 0, len(series))
	for _, s := range series {
		vals = append(vals, f(s))
	}
	return stat.Mean(vals, nil)
}

func trendScore(s Series) float64 {
	if len(s.Closes) < 2 {
		return 0
	}
	ema := ema20(s.Closes)
	if ema == 0 {
		return 0
	}
	price := s.Closes[len(s.Closes)-1]
	return clamp((price-ema)/ema*10, -1, 1)
}

func volatilityScore(s Series) float64 {
	returns := pctReturns(s.Closes)
	if len(returns) == 0 {
		return 0
	}
	annualized := stat.StdDev(returns, nil) * math.Sqrt(252)
	return clamp(annualized, 0, 1)
}

func breadthScore(s Series) float64 {
	if len(s.Closes) == 0 {
		return 0
	}
	mean := stat.Mean(s.Closes, nil)
	if s.Closes[len(s.Closes)-1] > mean {
		return 1
	}
	return -1
}

func momentumScore(s Series) float64 {
	const window = 10
	if len(s.Closes) < window+1 {
		return 0
	}
	prior := s.Closes[len(s.Closes)-window-1]
	if prior == 0 {
		return 0
	}
	ret := (s.Closes[len(s.Closes)-1] - prior) / prior
	return clamp(ret*5, -1, 1)
}

func ema20(closes []float64) float64 {
	const length = 20
	if len(closes) < length {
		return stat.Mean(closes, nil)
	}
	multiplier := 2.0 / (float64(length) + 1)
	ema := stat.Mean(closes[:length], nil)
	for _, c := range closes[length:] {
		ema = (c-ema)*multiplier + ema
	}
	return ema
}

func pctReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		out = append(out, (closes[i]-closes[i-1])/closes[i-1])
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
