// Package normalize implements C5: mapping a heterogeneous scanner
// Candidate into the canonical Opportunity record the rest of the engine
// operates on.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sorelab/sore/internal/providers"
)

// SourceType distinguishes opportunities backed by options structures from
// those backed by plain equities.
type SourceType string

const (
	SourceOptions SourceType = "options"
	SourceStock   SourceType = "stock"
)

// ModelInference is the nullable prior model-evaluation record attached to
// an Opportunity.
type ModelInference struct {
	Status         string   `json:"status"`
	Recommendation string   `json:"recommendation"`
	Confidence     *float64 `json:"confidence"`
	Summary        string   `json:"summary"`
}

// KeyMetrics holds the auxiliary display metrics every Opportunity carries,
// independent of source type.
type KeyMetrics struct {
	Price     *float64 `json:"price"`
	RSI14     *float64 `json:"rsi14"`
	EMA20     *float64 `json:"ema20"`
	IVRVRatio *float64 `json:"iv_rv_ratio"`
	Trend     *string  `json:"trend"`      // up, down, range, or nil
	IVRVFlag  *string  `json:"iv_rv_flag"` // rich, cheap, balanced, or nil
	Liquidity *float64 `json:"liquidity"`
}

// Opportunity is C5's canonical output record.
type Opportunity struct {
	Symbol        string                 `json:"symbol"`
	Strategy      string                 `json:"strategy"`
	SourceType    SourceType             `json:"source_type"`
	SourceScanner string                 `json:"source_scanner"`
	Score         float64                `json:"score"`
	EV            *float64               `json:"ev"`
	POP           *float64               `json:"pop"`
	RoR           *float64               `json:"ror"`
	KeyMetrics    KeyMetrics             `json:"key_metrics"`
	Model         *ModelInference        `json:"model"`
	Trade         map[string]interface{} `json:"trade"`
	TradeKey      string                 `json:"trade_key"`
	Notes         []string               `json:"notes,omitempty"`
}

// strategyAliases is the closed substring/alias table strategy
// canonicalization resolves through. Longer, more specific
// keys are checked before shorter ones so "put_credit_spread" resolves to
// "credit_spread" rather than a looser "credit" match.
var strategyAliases = []struct {
	substrings []string
	canonical  string
}{
	{[]string{"iron_condor", "condor"}, "iron_condor"},
	{[]string{"butterfly"}, "butterfly"},
	{[]string{"calendar"}, "calendar"},
	{[]string{"put_credit_spread", "call_credit_spread", "credit_spread", "credit"}, "credit_spread"},
	{[]string{"debit_spread", "debit"}, "debit_spread"},
	{[]string{"income", "covered_call", "cash_secured_put"}, "income"},
}

// CanonicalizeStrategy lower-cases strategyID and resolves it through the
// alias table, falling back to the lower-cased input verbatim when nothing
// matches.
func CanonicalizeStrategy(strategyID string) string {
	s := strings.ToLower(strings.TrimSpace(strategyID))
	for _, entry := range strategyAliases {
		for _, sub := range entry.substrings {
			if strings.Contains(s, sub) {
				return entry.canonical
			}
		}
	}
	return s
}

// Normalize maps raw into a canonical Opportunity. It never fails: gaps in
// the input degrade to null metrics plus a Notes entry rather than an error.
func Normalize(raw providers.Candidate, sourceScanner string, sourceType SourceType) Opportunity {
	symbol := strings.ToUpper(strings.TrimSpace(raw.Symbol))
	if symbol == "" {
		symbol = "N/A"
	}

	var notes []string
	note := func(msg string) { notes = append(notes, msg) }

	strategy := CanonicalizeStrategy(raw.StrategyID)

	score := resolveFloat(raw, "score")
	baseScore := 0.0
	if score != nil {
		baseScore = clamp(*score, 0, 100)
	} else {
		note("score missing from candidate; defaulted to 0")
	}

	var ev, pop, ror *float64
	if sourceType == SourceStock {
		note("stock opportunity: ev/pop/ror held null by contract")
	} else {
		ev = resolveFloat(raw, "expected_value")
		pop = resolvePOP(raw, note)
		ror = resolveRoR(raw, note)
	}

	keyMetrics := buildKeyMetrics(raw)
	trade := mergeTrade(raw)

	opp := Opportunity{
		Symbol:        symbol,
		Strategy:      strategy,
		SourceType:    sourceType,
		SourceScanner: sourceScanner,
		Score:         baseScore,
		EV:            ev,
		POP:           pop,
		RoR:           ror,
		KeyMetrics:    keyMetrics,
		Trade:         trade,
		Notes:         notes,
	}
	opp.TradeKey = TradeKey(opp)
	return opp
}

// resolvePOP applies a legacy-encoding shim: a pop greater than 1.0
// is divided by 100 exactly once.
func resolvePOP(raw providers.Candidate, note func(string)) *float64 {
	pop := resolveFloat(raw, "pop")
	if pop == nil {
		return nil
	}
	v := *pop
	if v > 1.0 {
		v = v / 100
		note("pop exceeded 1.0; divided by 100 (legacy percent encoding)")
	}
	return &v
}

// resolveRoR prefers the direct field; otherwise derives from
// max_profit/max_loss when max_loss > 0.
func resolveRoR(raw providers.Candidate, note func(string)) *float64 {
	if direct := resolveFloat(raw, "return_on_risk"); direct != nil {
		return direct
	}
	maxProfit := resolveFloat(raw, "max_profit")
	maxLoss := resolveFloat(raw, "max_loss")
	if maxProfit != nil && maxLoss != nil && *maxLoss > 0 {
		v := *maxProfit / *maxLoss
		return &v
	}
	note("return_on_risk unavailable: no direct field and max_loss missing or non-positive")
	return nil
}

// mergeTrade flattens a Candidate's Computed and Fields into a single map
// for opaque pass-through, so downstream consumers (and TradeKey) see every
// value the candidate carried regardless of which tier it arrived in.
// Fields takes precedence on key collision, the reverse of resolveFloat,
// which prefers Computed.
func mergeTrade(raw providers.Candidate) map[string]interface{} {
	trade := make(map[string]interface{}, len(raw.Computed)+len(raw.Fields))
	for k, v := range raw.Computed {
		trade[k] = v
	}
	for k, v := range raw.Fields {
		trade[k] = v
	}
	return trade
}

func buildKeyMetrics(raw providers.Candidate) KeyMetrics {
	km := KeyMetrics{
		Price: resolveFloat(raw, "price"),
		RSI14: resolveFloat(raw, "rsi14"),
		EMA20: resolveFloat(raw, "ema20"),
	}

	km.Liquidity = resolveLiquidity(raw)

	if ratio := resolveFloat(raw, "iv_rv_ratio"); ratio != nil {
		km.IVRVRatio = ratio
		flag := "balanced"
		switch {
		case *ratio > 1.2:
			flag = "rich"
		case *ratio < 0.8:
			flag = "cheap"
		}
		km.IVRVFlag = &flag
	}

	if trend := resolveTrend(raw); trend != "" {
		km.Trend = &trend
	}

	return km
}

func resolveTrend(raw providers.Candidate) string {
	price := resolveFloat(raw, "price")
	ema := resolveFloat(raw, "ema20")
	if price == nil || ema == nil || *ema == 0 {
		return ""
	}
	distance := (*price - *ema) / *ema
	switch {
	case distance > 0.01:
		return "up"
	case distance < -0.01:
		return "down"
	default:
		return "range"
	}
}

// resolveLiquidity implements the liquidity derivation: prefer
// bid_ask_spread_pct; otherwise fall back to a volume/open-interest blend.
func resolveLiquidity(raw providers.Candidate) *float64 {
	if spread := resolveFloat(raw, "bid_ask_spread_pct"); spread != nil {
		v := clamp(100-*spread*100, 0, 100)
		return &v
	}

	vol := resolveFloat(raw, "volume")
	oi := resolveFloat(raw, "open_interest")
	if vol == nil && oi == nil {
		return nil
	}
	var v float64
	if vol != nil {
		v += (*vol / 1000) * 40
	}
	if oi != nil {
		v += (*oi / 3000) * 60
	}
	v = clamp(v, 0, 100)
	return &v
}

// resolveFloat resolves key in a fixed order: (1) raw.Computed[key],
// (2) raw.Fields[key] converted to float64, (3) nil. No alias keys are
// consulted, so a metric a scanner reports under another name (for example
// probability_of_profit instead of pop) resolves to nil.
func resolveFloat(raw providers.Candidate, key string) *float64 {
	if raw.Computed != nil {
		if v, ok := raw.Computed[key]; ok {
			return &v
		}
	}
	if raw.Fields != nil {
		if v, ok := raw.Fields[key]; ok {
			if f, ok := toFloat(v); ok {
				return &f
			}
		}
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
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

// TradeKey builds the deterministic identifier:
// <SYMBOL>|<EXPIRATION-or-NA>|<STRATEGY>|<SHORT_STRIKE-or-NA>|<LONG_STRIKE-or-NA>|<DTE-or-NA>.
func TradeKey(opp Opportunity) string {
	expiration := fieldOrNA(opp.Trade, "expiration")
	shortStrike := strikeOrNA(opp.Trade, "short_strike")
	longStrike := strikeOrNA(opp.Trade, "long_strike")
	dte := strikeOrNA(opp.Trade, "dte")

	return fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		strings.ToUpper(opp.Symbol), expiration, opp.Strategy, shortStrike, longStrike, dte)
}

func fieldOrNA(fields map[string]interface{}, key string) string {
	if fields == nil {
		return "NA"
	}
	v, ok := fields[key]
	if !ok {
		return "NA"
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "NA"
	}
	return s
}

// strikeOrNA renders a numeric field without a trailing ".0".
func strikeOrNA(fields map[string]interface{}, key string) string {
	if fields == nil {
		return "NA"
	}
	v, ok := fields[key]
	if !ok {
		return "NA"
	}
	f, ok := toFloat(v)
	if !ok {
		return "NA"
	}
	if f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
