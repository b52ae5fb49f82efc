package trading

import (
	"sync"

	"github.com/montanaflynn/stats"

	"niftytrader-go/src/models"
)

// DailyLedger is the append-only record of completed round trips for the
// current session. Safe for concurrent use.
type DailyLedger struct {
	mu      sync.Mutex
	records []models.TradeRecord
}

// NewDailyLedger creates an empty ledger
func NewDailyLedger() *DailyLedger {
	return &DailyLedger{}
}

// Add appends a completed trade
func (l *DailyLedger) Add(rec models.TradeRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

// Records returns a copy of all recorded trades in order
func (l *DailyLedger) Records() []models.TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.TradeRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Summary aggregates the day's performance
type Summary struct {
	TotalTrades int
	Wins        int
	Losses      int
	NetPnL      float64
	WinRate     float64 // percentage, 0 when no trades
	AvgPnL      float64
	BestTrade   float64
	WorstTrade  float64
}

// Summary computes the day's aggregate statistics
func (l *DailyLedger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Summary{TotalTrades: len(l.records)}
	if len(l.records) == 0 {
		return s
	}

	pnls := make([]float64, len(l.records))
	for i, rec := range l.records {
		pnls[i] = rec.PnL
		s.NetPnL += rec.PnL
		if rec.PnL >= 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}
	s.WinRate = float64(s.Wins) / float64(s.TotalTrades) * 100

	if avg, err := stats.Mean(pnls); err == nil {
		s.AvgPnL = avg
	}
	if best, err := stats.Max(pnls); err == nil {
		s.BestTrade = best
	}
	if worst, err := stats.Min(pnls); err == nil {
		s.WorstTrade = worst
	}
	return s
}
