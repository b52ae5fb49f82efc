package indicators

import (
	"math"

	"niftytrader-go/src/models"

	"github.com/markcheno/go-talib"
)

// Params holds every indicator parameter used by the strategy. The source
// material disagrees on some thresholds, so all of them are configuration
// rather than constants.
type Params struct {
	SuperTrendPeriod     int
	SuperTrendMultiplier float64
	EMARefPeriod         int // EMA on low/high series
	EMAFastPeriod        int
	EMASlowPeriod        int
	RSIPeriod            int
	StochRSIPeriod       int // RSI period feeding the stochastic
	StochPeriod          int // stochastic window over the RSI series
	StochKSmooth         int
	StochDSmooth         int
	MACDFast             int
	MACDSlow             int
	MACDSignal           int
}

// DefaultParams returns the chart settings the strategy was built around:
// SuperTrend(7,3), EMA Low/High(8), EMA(8,9), RSI(14), StochRSI(14,14,3,3),
// MACD(5,13,6).
func DefaultParams() Params {
	return Params{
		SuperTrendPeriod:     7,
		SuperTrendMultiplier: 3,
		EMARefPeriod:         8,
		EMAFastPeriod:        8,
		EMASlowPeriod:        9,
		RSIPeriod:            14,
		StochRSIPeriod:       14,
		StochPeriod:          14,
		StochKSmooth:         3,
		StochDSmooth:         3,
		MACDFast:             5,
		MACDSlow:             13,
		MACDSignal:           6,
	}
}

// firstPopulated returns the first row index at which every indicator field
// is defined.
func (p Params) firstPopulated() int {
	stochD := p.StochRSIPeriod + p.StochPeriod - 1 + p.StochKSmooth - 1 + p.StochDSmooth - 1
	macdHist := p.MACDSlow + p.MACDSignal - 2
	first := stochD
	for _, v := range []int{macdHist, p.SuperTrendPeriod, p.EMASlowPeriod - 1, p.EMAFastPeriod - 1, p.EMARefPeriod - 1} {
		if v > first {
			first = v
		}
	}
	return first
}

// MinCandles is the minimum series length that yields the three populated
// rows the condition evaluator needs.
func (p Params) MinCandles() int {
	return p.firstPopulated() + 3
}

// Calculator computes the full indicator frame for a candle series
type Calculator struct {
	params Params
}

// NewCalculator creates a new indicator calculator
func NewCalculator(params Params) *Calculator {
	return &Calculator{params: params}
}

// Params returns the parameter set the calculator was built with
func (c *Calculator) Params() Params { return c.params }

// Compute calculates all indicators over the candle series and returns one
// row per candle. Rows before the minimum lookback carry NaN markers and
// report Populated() == false. Returns nil when the series is too short to
// populate a single row.
func (c *Calculator) Compute(candles []models.Candle) []models.IndicatorRow {
	p := c.params
	if len(candles) <= p.firstPopulated() {
		return nil
	}

	n := len(candles)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, k := range candles {
		closes[i] = k.Close
		highs[i] = k.High
		lows[i] = k.Low
	}

	emaFast := markWarmup(talib.Ema(closes, p.EMAFastPeriod), p.EMAFastPeriod-1)
	emaSlow := markWarmup(talib.Ema(closes, p.EMASlowPeriod), p.EMASlowPeriod-1)
	emaRefLow := markWarmup(talib.Ema(lows, p.EMARefPeriod), p.EMARefPeriod-1)
	emaRefHigh := markWarmup(talib.Ema(highs, p.EMARefPeriod), p.EMARefPeriod-1)
	rsi := markWarmup(talib.Rsi(closes, p.RSIPeriod), p.RSIPeriod)

	macdLine, macdSignal, macdHist := talib.Macd(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	macdLine = markWarmup(macdLine, p.MACDSlow+p.MACDSignal-2)
	macdSignal = markWarmup(macdSignal, p.MACDSlow+p.MACDSignal-2)
	macdHist = markWarmup(macdHist, p.MACDSlow+p.MACDSignal-2)

	stochRSI := markWarmup(talib.Rsi(closes, p.StochRSIPeriod), p.StochRSIPeriod)
	stochK, stochD := stochSeries(stochRSI, p.StochPeriod, p.StochKSmooth, p.StochDSmooth)

	stValue, stDir := superTrend(highs, lows, closes, p.SuperTrendPeriod, p.SuperTrendMultiplier)

	rows := make([]models.IndicatorRow, n)
	for i := range rows {
		rows[i] = models.IndicatorRow{
			Candle:        candles[i],
			SuperTrend:    stValue[i],
			SuperTrendDir: stDir[i],
			EMAFast:       emaFast[i],
			EMASlow:       emaSlow[i],
			EMARefLow:     emaRefLow[i],
			EMARefHigh:    emaRefHigh[i],
			RSI:           rsi[i],
			StochRSIK:     stochK[i],
			StochRSID:     stochD[i],
			MACD:          macdLine[i],
			MACDSignal:    macdSignal[i],
			MACDHist:      macdHist[i],
		}
	}
	return rows
}

// markWarmup replaces the zero-filled warm-up region that talib emits with
// explicit NaN markers so undefined values are never mistaken for real zeros.
func markWarmup(vals []float64, first int) []float64 {
	out := make([]float64, len(vals))
	copy(out, vals)
	for i := 0; i < first && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// stochSeries applies a stochastic oscillator to the RSI series and smooths
// it twice: %K = SMA(raw, kSmooth), %D = SMA(%K, dSmooth). A flat RSI window
// (max == min) leaves the raw value undefined.
func stochSeries(rsi []float64, stochPeriod, kSmooth, dSmooth int) (k, d []float64) {
	n := len(rsi)
	raw := make([]float64, n)
	for i := 0; i < n; i++ {
		raw[i] = math.NaN()
		if i < stochPeriod-1 {
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		ok := true
		for j := i - stochPeriod + 1; j <= i; j++ {
			if math.IsNaN(rsi[j]) {
				ok = false
				break
			}
			lo = math.Min(lo, rsi[j])
			hi = math.Max(hi, rsi[j])
		}
		if !ok || hi == lo {
			continue
		}
		raw[i] = (rsi[i] - lo) / (hi - lo) * 100
	}
	k = smaSeries(raw, kSmooth)
	d = smaSeries(k, dSmooth)
	return k, d
}

// smaSeries is a simple moving average that propagates NaN: a window
// containing any undefined value yields an undefined result.
func smaSeries(vals []float64, period int) []float64 {
	out := make([]float64, len(vals))
	for i := range out {
		out[i] = math.NaN()
		if i < period-1 {
			continue
		}
		sum := 0.0
		ok := true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(vals[j]) {
				ok = false
				break
			}
			sum += vals[j]
		}
		if ok {
			out[i] = sum / float64(period)
		}
	}
	return out
}
