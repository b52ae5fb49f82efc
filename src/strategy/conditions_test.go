package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"niftytrader-go/src/models"
)

// bullishRow returns a row on which every long entry condition holds when
// the previous row is bullishRow() shifted slightly lower.
func bullishRow() models.IndicatorRow {
	return models.IndicatorRow{
		Candle:        models.Candle{Close: 25100},
		SuperTrend:    25000,
		SuperTrendDir: models.DirectionLong,
		EMAFast:       25080,
		EMASlow:       25060,
		EMARefLow:     25040,
		EMARefHigh:    25160,
		RSI:           55,
		StochRSIK:     40,
		StochRSID:     38,
		MACD:          12,
		MACDSignal:    8,
		MACDHist:      4,
	}
}

// prevOf lowers the momentum fields so "rising" comparisons pass on cur
func prevOf(cur models.IndicatorRow) models.IndicatorRow {
	prev := cur
	prev.RSI = cur.RSI - 2
	prev.StochRSIK = cur.StochRSIK - 5
	prev.MACDHist = cur.MACDHist - 1
	return prev
}

func bearishRow() models.IndicatorRow {
	return models.IndicatorRow{
		Candle:        models.Candle{Close: 24900},
		SuperTrend:    25000,
		SuperTrendDir: models.DirectionShort,
		EMAFast:       24920,
		EMASlow:       24940,
		EMARefLow:     24840,
		EMARefHigh:    24960,
		RSI:           45,
		StochRSIK:     60,
		StochRSID:     62,
		MACD:          -12,
		MACDSignal:    -8,
		MACDHist:      -4,
	}
}

func prevOfBearish(cur models.IndicatorRow) models.IndicatorRow {
	prev := cur
	prev.RSI = cur.RSI + 2
	prev.StochRSIK = cur.StochRSIK + 5
	prev.MACDHist = cur.MACDHist + 1
	return prev
}

func TestEvaluateEntryLongAllConditions(t *testing.T) {
	rules := NewRules(DefaultThresholds())
	cur := bullishRow()

	v := rules.EvaluateEntry([]models.IndicatorRow{prevOf(cur), cur})
	require.True(t, v.Overall)
	assert.Equal(t, models.DirectionLong, v.Direction)
	assert.True(t, v.Conditions["supertrend_bullish"])
	assert.True(t, v.Conditions["macd_ok"])
}

func TestEvaluateEntryShortMirror(t *testing.T) {
	rules := NewRules(DefaultThresholds())
	cur := bearishRow()

	v := rules.EvaluateEntry([]models.IndicatorRow{prevOfBearish(cur), cur})
	require.True(t, v.Overall)
	assert.Equal(t, models.DirectionShort, v.Direction)
}

func TestEvaluateEntryMomentumFailureBlocks(t *testing.T) {
	rules := NewRules(DefaultThresholds())
	cur := bullishRow()
	cur.RSI = 70 // above the long cap
	prev := prevOf(cur)

	v := rules.EvaluateEntry([]models.IndicatorRow{prev, cur})
	assert.False(t, v.Overall)
	assert.Equal(t, models.DirectionNone, v.Direction)
	assert.False(t, v.Conditions["rsi_ok"])
}

func TestEvaluateEntrySuperTrendFlipOverridesMomentum(t *testing.T) {
	rules := NewRules(DefaultThresholds())
	cur := bullishRow()
	cur.RSI = 70 // momentum chain fails
	prev := prevOf(cur)
	prev.SuperTrendDir = models.DirectionShort // flipped bullish this bar

	v := rules.EvaluateEntry([]models.IndicatorRow{prev, cur})
	require.True(t, v.Overall)
	assert.Equal(t, models.DirectionLong, v.Direction)
	assert.True(t, v.Conditions["supertrend_flip"])
}

func TestEvaluateEntryEMACrossoverOverridesMomentum(t *testing.T) {
	rules := NewRules(DefaultThresholds())
	cur := bullishRow()
	cur.StochRSIK = 80 // above threshold
	prev := prevOf(cur)
	prev.StochRSIK = 85 // and falling, momentum fails
	prev.EMAFast = prev.EMASlow - 1

	v := rules.EvaluateEntry([]models.IndicatorRow{prev, cur})
	require.True(t, v.Overall)
	assert.True(t, v.Conditions["ema_crossed_up"])
}

func TestEvaluateEntryFlipEntersBelowSupport(t *testing.T) {
	// On the breakout bar the close may still sit below the EMA-on-low;
	// the flip enters on the direction checks alone.
	rules := NewRules(DefaultThresholds())
	cur := bullishRow()
	cur.Close = cur.EMARefLow - 5
	cur.SuperTrend = cur.Close - 50
	cur.RSI = 70 // momentum fails too
	prev := prevOf(cur)
	prev.SuperTrendDir = models.DirectionShort

	v := rules.EvaluateEntry([]models.IndicatorRow{prev, cur})
	require.True(t, v.Overall)
	assert.Equal(t, models.DirectionLong, v.Direction)
	assert.True(t, v.Conditions["supertrend_flip"])
	assert.False(t, v.Conditions["close_above_ema_low"])
}

func TestEvaluateEntryOverrideNeedsDirectionAgreement(t *testing.T) {
	rules := NewRules(DefaultThresholds())

	// flip without the EMA order agreeing
	cur := bullishRow()
	cur.RSI = 70 // momentum fails
	cur.EMAFast = cur.EMASlow - 1
	prev := prevOf(cur)
	prev.SuperTrendDir = models.DirectionShort
	prev.EMAFast = prev.EMASlow - 1
	v := rules.EvaluateEntry([]models.IndicatorRow{prev, cur})
	assert.False(t, v.Overall)

	// crossover without SuperTrend agreeing
	cur = bullishRow()
	cur.RSI = 70
	cur.SuperTrendDir = models.DirectionShort
	prev = prevOf(cur)
	prev.SuperTrendDir = models.DirectionShort
	prev.EMAFast = prev.EMASlow - 1
	v = rules.EvaluateEntry([]models.IndicatorRow{prev, cur})
	assert.False(t, v.Overall)
}

func TestEvaluateEntryUnpopulatedRowsNoSignal(t *testing.T) {
	rules := NewRules(DefaultThresholds())
	cur := bullishRow()
	prev := prevOf(cur)
	prev.RSI = math.NaN()

	v := rules.EvaluateEntry([]models.IndicatorRow{prev, cur})
	assert.False(t, v.Overall)

	assert.False(t, rules.EvaluateEntry([]models.IndicatorRow{cur}).Overall)
	assert.False(t, rules.EvaluateEntry(nil).Overall)
}

func TestEvaluateExitLongOnFallingSupport(t *testing.T) {
	rules := NewRules(DefaultThresholds())
	r2 := bullishRow()
	r2.EMARefLow = 25060
	r1 := bullishRow()
	r1.EMARefLow = 25050
	r0 := bullishRow()
	r0.EMARefLow = 25040
	r0.Close = 25030 // below the support line

	exit, reason := rules.EvaluateExit([]models.IndicatorRow{r2, r1, r0}, models.DirectionLong)
	require.True(t, exit)
	assert.Equal(t, "ema_low_falling", reason)
}

func TestEvaluateExitLongOnStrongBearish(t *testing.T) {
	rules := NewRules(DefaultThresholds())
	healthy := bullishRow()
	cur := bullishRow()
	cur.SuperTrendDir = models.DirectionShort
	cur.EMAFast = cur.EMASlow - 5
	cur.Close = cur.EMARefLow - 10

	exit, reason := rules.EvaluateExit([]models.IndicatorRow{healthy, healthy, cur}, models.DirectionLong)
	require.True(t, exit)
	assert.Equal(t, "strong_bearish", reason)
}

func TestEvaluateExitLongHoldsWhileHealthy(t *testing.T) {
	rules := NewRules(DefaultThresholds())
	r := bullishRow()

	exit, _ := rules.EvaluateExit([]models.IndicatorRow{r, r, r}, models.DirectionLong)
	assert.False(t, exit)
}

func TestEvaluateExitShortMirror(t *testing.T) {
	rules := NewRules(DefaultThresholds())
	r2 := bearishRow()
	r2.EMARefHigh = 24940
	r1 := bearishRow()
	r1.EMARefHigh = 24950
	r0 := bearishRow()
	r0.EMARefHigh = 24960
	r0.Close = 24970 // above the resistance line

	exit, reason := rules.EvaluateExit([]models.IndicatorRow{r2, r1, r0}, models.DirectionShort)
	require.True(t, exit)
	assert.Equal(t, "ema_high_rising", reason)

	healthy := bearishRow()
	cur := bearishRow()
	cur.SuperTrendDir = models.DirectionLong
	cur.EMAFast = cur.EMASlow + 5
	cur.Close = cur.EMARefHigh + 10
	exit, reason = rules.EvaluateExit([]models.IndicatorRow{healthy, healthy, cur}, models.DirectionShort)
	require.True(t, exit)
	assert.Equal(t, "strong_bullish", reason)
}

func TestEvaluateExitNeedsThreePopulatedRows(t *testing.T) {
	rules := NewRules(DefaultThresholds())
	r := bullishRow()

	exit, _ := rules.EvaluateExit([]models.IndicatorRow{r, r}, models.DirectionLong)
	assert.False(t, exit)

	bad := bullishRow()
	bad.StochRSIK = math.NaN()
	exit, _ = rules.EvaluateExit([]models.IndicatorRow{bad, r, r}, models.DirectionLong)
	assert.False(t, exit)
}
