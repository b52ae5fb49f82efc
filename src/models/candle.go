package models

import (
	"math"
	"time"
)

// Candle represents a single completed candlestick
type Candle struct {
	Timestamp time.Time // Candle open time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Direction represents a trend or trade direction
type Direction int

const (
	DirectionNone Direction = iota
	DirectionLong
	DirectionShort
)

// String returns a human readable direction name
func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "LONG"
	case DirectionShort:
		return "SHORT"
	default:
		return "NONE"
	}
}

// IndicatorRow is a candle augmented with all computed indicator fields.
// Fields are NaN until enough history exists; rows with any NaN field must
// not be evaluated by the strategy.
type IndicatorRow struct {
	Candle

	SuperTrend    float64   // SuperTrend line value
	SuperTrendDir Direction // DirectionLong (bullish) or DirectionShort (bearish)
	EMAFast       float64   // fast EMA on close
	EMASlow       float64   // slow EMA on close
	EMARefLow     float64   // EMA on the low series (dynamic support)
	EMARefHigh    float64   // EMA on the high series (dynamic resistance)
	RSI           float64
	StochRSIK     float64
	StochRSID     float64
	MACD          float64
	MACDSignal    float64
	MACDHist      float64
}

// Populated reports whether every indicator field required for evaluation
// has been computed for this row.
func (r IndicatorRow) Populated() bool {
	if r.SuperTrendDir == DirectionNone {
		return false
	}
	for _, v := range []float64{
		r.SuperTrend, r.EMAFast, r.EMASlow, r.EMARefLow, r.EMARefHigh,
		r.RSI, r.StochRSIK, r.MACDHist,
	} {
		if math.IsNaN(v) {
			return false
		}
	}
	return true
}
