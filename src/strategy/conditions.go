// Package strategy evaluates the rule set over a computed indicator frame.
// Entries are a strict AND chain, exits are an OR of fast triggers.
package strategy

import (
	"niftytrader-go/src/models"
)

// Thresholds are the tunable rule boundaries. The source charts disagree on
// the exact values (RSI < 65 vs < 70, StochRSI < 50 vs < 60), so they are
// configuration, not constants.
type Thresholds struct {
	StochRSI float64 // long: K below this OR rising; short mirrors above 100-threshold
	RSIMax   float64 // long entries require RSI below this and rising
	RSIMin   float64 // short entries require RSI above this and falling
}

// DefaultThresholds returns the values the live strategy runs with
func DefaultThresholds() Thresholds {
	return Thresholds{StochRSI: 50, RSIMax: 65, RSIMin: 35}
}

// Verdict is the structured outcome of one rule evaluation. Conditions keeps
// the individual sub-condition results for diagnostics and display.
type Verdict struct {
	Overall    bool
	Direction  models.Direction
	Conditions map[string]bool
	Row        models.IndicatorRow // the row the verdict was computed from
}

// Rules evaluates entry and exit conditions against indicator rows
type Rules struct {
	th Thresholds
}

// NewRules creates a rule evaluator with the given thresholds
func NewRules(th Thresholds) *Rules {
	return &Rules{th: th}
}

// EvaluateEntry checks the entry chain on the latest rows of the frame.
// It needs the last two rows populated; anything less yields a no-signal
// verdict (missing data is never treated as bullish or bearish).
func (r *Rules) EvaluateEntry(rows []models.IndicatorRow) Verdict {
	if len(rows) < 2 {
		return Verdict{}
	}
	cur, prev := rows[len(rows)-1], rows[len(rows)-2]
	if !cur.Populated() || !prev.Populated() {
		return Verdict{}
	}

	if ok, conds := r.entryLong(cur, prev); ok {
		return Verdict{Overall: true, Direction: models.DirectionLong, Conditions: conds, Row: cur}
	}
	if ok, conds := r.entryShort(cur, prev); ok {
		return Verdict{Overall: true, Direction: models.DirectionShort, Conditions: conds, Row: cur}
	}

	// No entry: report the long-side chain for display purposes.
	_, conds := r.entryLong(cur, prev)
	return Verdict{Conditions: conds, Row: cur}
}

// entryLong evaluates the bullish chain:
//  1. SuperTrend bullish
//  2. close above the SuperTrend line
//  3. close above the EMA-on-low support
//  4. fast EMA above slow EMA
//  5. StochRSI below threshold OR rising
//  6. RSI below max AND rising
//  7. MACD histogram positive OR improving
//
// A SuperTrend flip or a fresh EMA crossover this bar is a strong signal on
// its own: it enters on conditions 1 and 4 alone, without the close-vs-line
// checks (2-3) or the momentum sub-chain (5-7). During the breakout bar the
// close may still sit below the EMA-on-low support.
func (r *Rules) entryLong(cur, prev models.IndicatorRow) (bool, map[string]bool) {
	conds := map[string]bool{
		"supertrend_bullish":   cur.SuperTrendDir == models.DirectionLong,
		"close_above_st":       cur.Close > cur.SuperTrend,
		"close_above_ema_low":  cur.Close > cur.EMARefLow,
		"ema_bullish":          cur.EMAFast > cur.EMASlow,
		"stoch_ok":             cur.StochRSIK < r.th.StochRSI || cur.StochRSIK > prev.StochRSIK,
		"rsi_ok":               cur.RSI < r.th.RSIMax && cur.RSI > prev.RSI,
		"macd_ok":              cur.MACDHist > 0 || cur.MACDHist > prev.MACDHist,
		"supertrend_flip":      prev.SuperTrendDir == models.DirectionShort && cur.SuperTrendDir == models.DirectionLong,
		"ema_crossed_up":       prev.EMAFast <= prev.EMASlow && cur.EMAFast > cur.EMASlow,
	}

	trend := conds["supertrend_bullish"] && conds["close_above_st"] &&
		conds["close_above_ema_low"] && conds["ema_bullish"]
	momentum := conds["stoch_ok"] && conds["rsi_ok"] && conds["macd_ok"]
	override := (conds["supertrend_flip"] || conds["ema_crossed_up"]) &&
		conds["supertrend_bullish"] && conds["ema_bullish"]

	return (trend && momentum) || override, conds
}

// entryShort is the exact mirror of entryLong
func (r *Rules) entryShort(cur, prev models.IndicatorRow) (bool, map[string]bool) {
	conds := map[string]bool{
		"supertrend_bearish":   cur.SuperTrendDir == models.DirectionShort,
		"close_below_st":       cur.Close < cur.SuperTrend,
		"close_below_ema_high": cur.Close < cur.EMARefHigh,
		"ema_bearish":          cur.EMAFast < cur.EMASlow,
		"stoch_ok":             cur.StochRSIK > 100-r.th.StochRSI || cur.StochRSIK < prev.StochRSIK,
		"rsi_ok":               cur.RSI > r.th.RSIMin && cur.RSI < prev.RSI,
		"macd_ok":              cur.MACDHist < 0 || cur.MACDHist < prev.MACDHist,
		"supertrend_flip":      prev.SuperTrendDir == models.DirectionLong && cur.SuperTrendDir == models.DirectionShort,
		"ema_crossed_down":     prev.EMAFast >= prev.EMASlow && cur.EMAFast < cur.EMASlow,
	}

	trend := conds["supertrend_bearish"] && conds["close_below_st"] &&
		conds["close_below_ema_high"] && conds["ema_bearish"]
	momentum := conds["stoch_ok"] && conds["rsi_ok"] && conds["macd_ok"]
	override := (conds["supertrend_flip"] || conds["ema_crossed_down"]) &&
		conds["supertrend_bearish"] && conds["ema_bearish"]

	return (trend && momentum) || override, conds
}

// EvaluateExit checks the exit triggers for an open position of the given
// side. It needs the last three populated rows (the reference EMA must have
// moved against the position for two consecutive bars). Returns whether to
// exit and the trigger name.
func (r *Rules) EvaluateExit(rows []models.IndicatorRow, side models.Direction) (bool, string) {
	if len(rows) < 3 {
		return false, ""
	}
	cur, prev, prev2 := rows[len(rows)-1], rows[len(rows)-2], rows[len(rows)-3]
	if !cur.Populated() || !prev.Populated() || !prev2.Populated() {
		return false, ""
	}

	switch side {
	case models.DirectionLong:
		falling := cur.EMARefLow < prev.EMARefLow && prev.EMARefLow < prev2.EMARefLow
		if falling && cur.Close < cur.EMARefLow {
			return true, "ema_low_falling"
		}
		if cur.SuperTrendDir == models.DirectionShort &&
			cur.EMAFast < cur.EMASlow && cur.Close < cur.EMARefLow {
			return true, "strong_bearish"
		}
	case models.DirectionShort:
		rising := cur.EMARefHigh > prev.EMARefHigh && prev.EMARefHigh > prev2.EMARefHigh
		if rising && cur.Close > cur.EMARefHigh {
			return true, "ema_high_rising"
		}
		if cur.SuperTrendDir == models.DirectionLong &&
			cur.EMAFast > cur.EMASlow && cur.Close > cur.EMARefHigh {
			return true, "strong_bullish"
		}
	}
	return false, ""
}
