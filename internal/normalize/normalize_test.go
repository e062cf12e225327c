package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorelab/sore/internal/providers"
)

func TestCanonicalizeStrategy_ResolvesAliases(t *testing.T) {
	cases := map[string]string{
		"put_credit_spread": "credit_spread",
		"PUT_CREDIT_SPREAD": "credit_spread",
		"iron_condor":        "iron_condor",
		"condor_wide":        "iron_condor",
		"cash_secured_put":   "income",
		"totally_unknown":    "totally_unknown",
	}
	for input, want := range cases {
		assert.Equal(t, want, CanonicalizeStrategy(input), "input=%s", input)
	}
}

func TestNormalize_ResolutionOrderPrefersComputedOverFields(t *testing.T) {
	raw := providers.Candidate{
		Symbol:     "spy",
		StrategyID: "credit_spread",
		Computed:   map[string]float64{"score": 80},
		Fields:     map[string]interface{}{"score": 10.0},
	}
	opp := Normalize(raw, "stock_scanner", SourceOptions)
	assert.Equal(t, 80.0, opp.Score)
}

func TestNormalize_FallsBackToFieldsWhenComputedMissing(t *testing.T) {
	raw := providers.Candidate{
		Symbol:     "SPY",
		StrategyID: "credit_spread",
		Fields:     map[string]interface{}{"score": 55.0},
	}
	opp := Normalize(raw, "stock_scanner", SourceOptions)
	assert.Equal(t, 55.0, opp.Score)
}

func TestNormalize_MissingScoreDefaultsToZeroWithNote(t *testing.T) {
	raw := providers.Candidate{Symbol: "SPY", StrategyID: "credit_spread"}
	opp := Normalize(raw, "stock_scanner", SourceOptions)
	assert.Equal(t, 0.0, opp.Score)
	assert.NotEmpty(t, opp.Notes)
}

func TestNormalize_StockSourceHoldsEVPOPRoRNull(t *testing.T) {
	raw := providers.Candidate{
		Symbol:   "SPY",
		Computed: map[string]float64{"expected_value": 5, "pop": 0.6, "return_on_risk": 0.2},
	}
	opp := Normalize(raw, "stock_scanner", SourceStock)
	assert.Nil(t, opp.EV)
	assert.Nil(t, opp.POP)
	assert.Nil(t, opp.RoR)
}

func TestNormalize_POPLegacyPercentShimDividesByHundred(t *testing.T) {
	raw := providers.Candidate{
		Symbol:     "SPY",
		StrategyID: "credit_spread",
		Computed:   map[string]float64{"pop": 75},
	}
	opp := Normalize(raw, "stock_scanner", SourceOptions)
	require.NotNil(t, opp.POP)
	assert.InDelta(t, 0.75, *opp.POP, 0.0001)
}

func TestNormalize_POPBelowOneIsUntouched(t *testing.T) {
	raw := providers.Candidate{
		Symbol:     "SPY",
		StrategyID: "credit_spread",
		Computed:   map[string]float64{"pop": 0.42},
	}
	opp := Normalize(raw, "stock_scanner", SourceOptions)
	require.NotNil(t, opp.POP)
	assert.InDelta(t, 0.42, *opp.POP, 0.0001)
}

func TestNormalize_RoRPrefersDirectFieldOverDerivation(t *testing.T) {
	raw := providers.Candidate{
		Symbol:     "SPY",
		StrategyID: "credit_spread",
		Computed: map[string]float64{
			"return_on_risk": 0.3,
			"max_profit":     100,
			"max_loss":       50,
		},
	}
	opp := Normalize(raw, "stock_scanner", SourceOptions)
	require.NotNil(t, opp.RoR)
	assert.InDelta(t, 0.3, *opp.RoR, 0.0001)
}

func TestNormalize_RoRDerivesFromMaxProfitOverMaxLoss(t *testing.T) {
	raw := providers.Candidate{
		Symbol:     "SPY",
		StrategyID: "credit_spread",
		Computed:   map[string]float64{"max_profit": 100, "max_loss": 50},
	}
	opp := Normalize(raw, "stock_scanner", SourceOptions)
	require.NotNil(t, opp.RoR)
	assert.InDelta(t, 2.0, *opp.RoR, 0.0001)
}

func TestNormalize_RoRNilWhenMaxLossNonPositive(t *testing.T) {
	raw := providers.Candidate{
		Symbol:     "SPY",
		StrategyID: "credit_spread",
		Computed:   map[string]float64{"max_profit": 100, "max_loss": 0},
	}
	opp := Normalize(raw, "stock_scanner", SourceOptions)
	assert.Nil(t, opp.RoR)
}

func TestNormalize_LiquidityPrefersBidAskSpread(t *testing.T) {
	raw := providers.Candidate{
		Symbol:   "SPY",
		Computed: map[string]float64{"bid_ask_spread_pct": 0.1, "volume": 10000, "open_interest": 30000},
	}
	opp := Normalize(raw, "stock_scanner", SourceOptions)
	require.NotNil(t, opp.KeyMetrics.Liquidity)
	assert.InDelta(t, 90.0, *opp.KeyMetrics.Liquidity, 0.0001)
}

func TestNormalize_LiquidityFallsBackToVolumeOIBlend(t *testing.T) {
	raw := providers.Candidate{
		Symbol:   "SPY",
		Computed: map[string]float64{"volume": 1000, "open_interest": 3000},
	}
	opp := Normalize(raw, "stock_scanner", SourceOptions)
	require.NotNil(t, opp.KeyMetrics.Liquidity)
	assert.InDelta(t, 100.0, *opp.KeyMetrics.Liquidity, 0.0001)
}

func TestNormalize_LiquidityNilWhenNoInputsPresent(t *testing.T) {
	raw := providers.Candidate{Symbol: "SPY"}
	opp := Normalize(raw, "stock_scanner", SourceOptions)
	assert.Nil(t, opp.KeyMetrics.Liquidity)
}

func TestTradeKey_FormatsWithNASentinels(t *testing.T) {
	raw := providers.Candidate{
		Symbol:     "spy",
		StrategyID: "credit_spread",
		Fields: map[string]interface{}{
			"short_strike": 400.0,
			"long_strike":  395.0,
		},
	}
	opp := Normalize(raw, "stock_scanner", SourceOptions)
	assert.Equal(t, "SPY|NA|credit_spread|400|395|NA", opp.TradeKey)
}

func TestTradeKey_IsStableAcrossRenormalizationOfTrade(t *testing.T) {
	raw := providers.Candidate{
		Symbol:     "SPY",
		StrategyID: "credit_spread",
		Computed:   map[string]float64{"short_strike": 400, "long_strike": 395, "dte": 14},
		Fields:     map[string]interface{}{"expiration": "2026-02-01"},
	}
	opp := Normalize(raw, "stock_scanner", SourceOptions)

	reNormalized := Normalize(providers.Candidate{
		Symbol:     opp.Symbol,
		StrategyID: opp.Strategy,
		Fields:     opp.Trade,
	}, "stock_scanner", SourceOptions)

	assert.Equal(t, opp.TradeKey, reNormalized.TradeKey)
}

func TestNormalize_ScoreIsClampedToZeroHundred(t *testing.T) {
	raw := providers.Candidate{Symbol: "SPY", Computed: map[string]float64{"score": 150}}
	opp := Normalize(raw, "stock_scanner", SourceOptions)
	assert.Equal(t, 100.0, opp.Score)
}
