// Package indicators computes technical metrics from a series of closes:
// RSI14, EMA20 and the distance from it, Bollinger Bands, realized
// volatility, and an implied/realized volatility ratio. C5 does not call
// these helpers; it reads rsi14, ema20 and iv_rv_ratio from the candidate.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// isNaN reports whether f is NaN.
func isNaN(f float64) bool { return f != f }

// RSI14 returns the 14-period Relative Strength Index for closes, or nil if
// there isn't enough history (length+1 closes minimum).
func RSI14(closes []float64) *float64 {
	const length = 14
	if len(closes) < length+1 {
		return nil
	}
	rsi := talib.Rsi(closes, length)
	if len(rsi) > 0 && !isNaN(rsi[len(rsi)-1]) {
		v := rsi[len(rsi)-1]
		return &v
	}
	return nil
}

// EMA20 returns the 20-period exponential moving average, falling back to a
// simple mean when there isn't enough history for a proper EMA.
func EMA20(closes []float64) *float64 {
	const length = 20
	if len(closes) == 0 {
		return nil
	}
	if len(closes) < length {
		m := stat.Mean(closes, nil)
		return &m
	}
	ema := talib.Ema(closes, length)
	if len(ema) > 0 && !isNaN(ema[len(ema)-1]) {
		v := ema[len(ema)-1]
		return &v
	}
	m := stat.Mean(closes[len(closes)-length:], nil)
	return &m
}

// DistanceFromEMA20 returns (price - EMA20) / EMA20, positive when price
// trades above its trend line.
func DistanceFromEMA20(closes []float64) *float64 {
	if len(closes) == 0 {
		return nil
	}
	ema := EMA20(closes)
	if ema == nil || *ema == 0 {
		return nil
	}
	d := (closes[len(closes)-1] - *ema) / *ema
	return &d
}

// BollingerBands holds the three Bollinger Band lines at the most recent bar.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger20 returns 20-period Bollinger Bands at 2 standard deviations, or
// nil if there isn't enough history.
func Bollinger20(closes []float64) *BollingerBands {
	const length = 20
	const stdDev = 2.0
	if len(closes) < length {
		return nil
	}
	upper, middle, lower := talib.BBands(closes, length, stdDev, stdDev, 0)
	if len(upper) > 0 && !isNaN(upper[len(upper)-1]) {
		return &BollingerBands{
			Upper:  upper[len(upper)-1],
			Middle: middle[len(middle)-1],
			Lower:  lower[len(lower)-1],
		}
	}
	return nil
}

// RealizedVolatility annualizes the standard deviation of daily returns
// derived from closes, using 252 trading days per year.
func RealizedVolatility(closes []float64) *float64 {
	if len(closes) < 2 {
		return nil
	}
	returns := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns[i-1] = (closes[i] - closes[i-1]) / closes[i-1]
	}
	v := stat.StdDev(returns, nil) * math.Sqrt(252)
	return &v
}

// IVRVRatio divides an option's implied volatility by the underlying's
// realized volatility, a standard richness/cheapness signal for premium
// selling strategies. Returns nil if realized volatility can't be computed
// or is zero.
func IVRVRatio(impliedVol float64, closes []float64) *float64 {
	rv := RealizedVolatility(closes)
	if rv == nil || *rv == 0 {
		return nil
	}
	ratio := impliedVol / *rv
	return &ratio
}
