package providers

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoMarketProvider_FetchStockScanner(t *testing.T) {
	p := NewDemoMarketProvider("demo", zerolog.Nop(), 1)
	candidates, err := p.FetchStockScanner(context.Background(), []string{"SPY", "QQQ"})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "SPY", candidates[0].Symbol)
	assert.Contains(t, candidates[0].Computed, "rsi14")
}

func TestDemoMarketProvider_FetchStockScanner_RespectsCancellation(t *testing.T) {
	p := NewDemoMarketProvider("demo", zerolog.Nop(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.FetchStockScanner(ctx, []string{"SPY"})
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
}

func TestDemoMarketProvider_GetRegime_LabelMatchesScoreBand(t *testing.T) {
	p := NewDemoMarketProvider("demo", zerolog.Nop(), 42)
	regime, err := p.GetRegime(context.Background())
	require.NoError(t, err)

	switch {
	case regime.Score > 0.33:
		assert.Equal(t, "bullish", regime.Label)
	case regime.Score < -0.33:
		assert.Equal(t, "bearish", regime.Label)
	default:
		assert.Equal(t, "neutral", regime.Label)
	}
}

func TestDemoMarketProvider_FetchReport_NotImplemented(t *testing.T) {
	p := NewDemoMarketProvider("demo", zerolog.Nop(), 1)
	_, err := p.FetchReport(context.Background(), "credit_spreads", "missing.json")
	require.Error(t, err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ClassNotImplemented, pe.Class)
}

func TestDemoModelAnalyzer_AnalyzeTrade(t *testing.T) {
	a := NewDemoModelAnalyzer("demo-model", zerolog.Nop(), 7)
	trade := Candidate{Symbol: "SPY", StrategyID: "credit_spreads"}

	eval, err := a.AnalyzeTrade(context.Background(), trade, "stock_scanner")
	require.NoError(t, err)
	assert.Contains(t, []string{"ACCEPT", "REJECT", "NEUTRAL"}, eval.Recommendation)
	require.NotNil(t, eval.Confidence)
}

func TestClassifyHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		class  Class
		isNil  bool
	}{
		{200, ClassFatal, true},
		{404, ClassNotImplemented, false},
		{429, ClassTransient, false},
		{500, ClassTransient, false},
		{400, ClassFatal, false},
	}

	for _, tc := range cases {
		err := ClassifyHTTPStatus("demo", "op", tc.status, assert.AnError)
		if tc.isNil {
			assert.Nil(t, err)
			continue
		}
		require.NotNil(t, err)
		assert.Equal(t, tc.class, err.Class)
	}
}
