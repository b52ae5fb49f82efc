package indicators

import (
	"math"

	"niftytrader-go/src/models"
)

// superTrend computes the SuperTrend line and direction for a candle series.
// The ATR is an exponentially smoothed true range; the final bands carry
// forward until price closes through them, and the direction flips only when
// close crosses the opposing band. An exact tie keeps the previous direction.
func superTrend(highs, lows, closes []float64, period int, multiplier float64) ([]float64, []models.Direction) {
	n := len(closes)
	value := make([]float64, n)
	dir := make([]models.Direction, n)
	for i := range value {
		value[i] = math.NaN()
	}
	if n < 2 {
		return value, dir
	}

	// True range, exponentially smoothed. The first bar has no previous
	// close so its range is simply high - low.
	atr := make([]float64, n)
	alpha := 2.0 / float64(period+1)
	for i := 0; i < n; i++ {
		tr := highs[i] - lows[i]
		if i > 0 {
			tr = math.Max(tr, math.Abs(highs[i]-closes[i-1]))
			tr = math.Max(tr, math.Abs(lows[i]-closes[i-1]))
			atr[i] = alpha*tr + (1-alpha)*atr[i-1]
		} else {
			atr[i] = tr
		}
	}

	finalUpper := make([]float64, n)
	finalLower := make([]float64, n)
	for i := 0; i < n; i++ {
		mid := (highs[i] + lows[i]) / 2
		basicUpper := mid + multiplier*atr[i]
		basicLower := mid - multiplier*atr[i]

		if i == 0 {
			finalUpper[i] = basicUpper
			finalLower[i] = basicLower
			continue
		}

		if basicUpper < finalUpper[i-1] || closes[i-1] > finalUpper[i-1] {
			finalUpper[i] = basicUpper
		} else {
			finalUpper[i] = finalUpper[i-1]
		}

		if basicLower > finalLower[i-1] || closes[i-1] < finalLower[i-1] {
			finalLower[i] = basicLower
		} else {
			finalLower[i] = finalLower[i-1]
		}
	}

	for i := 1; i < n; i++ {
		if i == 1 {
			if closes[i] > finalUpper[i] {
				dir[i] = models.DirectionLong
			} else {
				dir[i] = models.DirectionShort
			}
		} else {
			switch {
			case dir[i-1] == models.DirectionShort && closes[i] > finalUpper[i]:
				dir[i] = models.DirectionLong
			case dir[i-1] == models.DirectionLong && closes[i] < finalLower[i]:
				dir[i] = models.DirectionShort
			default:
				dir[i] = dir[i-1]
			}
		}

		if dir[i] == models.DirectionLong {
			value[i] = finalLower[i]
		} else {
			value[i] = finalUpper[i]
		}
	}

	// The band math needs a full ATR window before it is meaningful.
	for i := 0; i < period && i < n; i++ {
		value[i] = math.NaN()
		dir[i] = models.DirectionNone
	}
	return value, dir
}
