package models

import "time"

// Position is the single locally tracked open trade. It is created only by
// a confirmed combined entry signal and mutated only by the trading state
// machine; at most one position is open at any time. Its lifecycle lives in
// the trading state machine, the struct itself carries no status field.
type Position struct {
	Symbol     string
	Side       Direction
	Quantity   int
	EntryPrice float64
	EntryTime  time.Time
	OrderID    string // broker order ID of the entry order
	Tag        string // local client tag
}

// TradeRecord is an immutable snapshot of a completed round trip, appended
// to the daily ledger when a position closes.
type TradeRecord struct {
	Symbol     string
	Side       Direction
	Quantity   int
	EntryPrice float64
	ExitPrice  float64
	PnL        float64
	PnLPercent float64
	ExitReason string
	EntryTime  time.Time
	ExitTime   time.Time
}

// AccountState holds the balance figures used for position sizing. It is
// refreshed immediately before every entry decision, never cached across
// trade cycles.
type AccountState struct {
	AvailableBalance float64
	RiskFraction     float64
}

// TradingCapital returns the portion of the balance permitted for a single
// position.
func (a AccountState) TradingCapital() float64 {
	return a.AvailableBalance * a.RiskFraction
}

// Instrument describes a tradable contract from the exchange instrument dump
type Instrument struct {
	Token      int64
	Symbol     string // trading symbol, e.g. "NIFTY2612325100CE"
	Name       string // underlying name, e.g. "NIFTY"
	Exchange   string
	Expiry     time.Time
	Strike     float64
	OptionType string // "CE" or "PE"
	LotSize    int
}

// OptionQuote is an instrument enriched with its live premium
type OptionQuote struct {
	Instrument
	LTP       float64
	Volume    float64
	OI        float64
	ChangePct float64
}
