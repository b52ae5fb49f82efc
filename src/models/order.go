package models

// Transaction and order constants as the broker API spells them
const (
	TransactionBuy  = "BUY"
	TransactionSell = "SELL"

	OrderTypeMarket = "MARKET"
	ProductIntraday = "MIS"

	OrderStatusComplete  = "COMPLETE"
	OrderStatusRejected  = "REJECTED"
	OrderStatusCancelled = "CANCELLED"
)

// OrderRequest describes one order to submit
type OrderRequest struct {
	Exchange        string
	Symbol          string
	TransactionType string // TransactionBuy or TransactionSell
	Quantity        int
	Product         string
	OrderType       string
	Tag             string
}

// OrderState is the broker-side view of a submitted order
type OrderState struct {
	OrderID       string
	Status        string
	AveragePrice  float64
	FilledQty     int
	StatusMessage string
}

// Filled reports whether the order completed in full
func (s OrderState) Filled() bool { return s.Status == OrderStatusComplete }

// Terminal reports whether the order can no longer change state
func (s OrderState) Terminal() bool {
	return s.Status == OrderStatusComplete || s.Status == OrderStatusRejected ||
		s.Status == OrderStatusCancelled
}

// NetPosition is a broker-reported open position, used for reconciliation
type NetPosition struct {
	Symbol       string
	Exchange     string
	Quantity     int // positive long, negative short
	AveragePrice float64
}
