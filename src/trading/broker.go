package trading

import (
	"context"
	"errors"
	"time"

	"niftytrader-go/src/models"
)

// Broker is the surface of the brokerage API the trading layer needs.
// The production implementation lives in the kite package; tests substitute
// an in-memory fake.
type Broker interface {
	// HistoricalCandles returns completed candles for the instrument token
	// in the given interval ("minute", "2minute", "5minute", ...).
	HistoricalCandles(ctx context.Context, token int64, interval string, from, to time.Time) ([]models.Candle, error)

	// LTP returns last traded prices keyed by "EXCHANGE:SYMBOL"
	LTP(ctx context.Context, keys ...string) (map[string]float64, error)

	// AvailableBalance returns the live available equity balance
	AvailableBalance(ctx context.Context) (float64, error)

	// PlaceOrder submits an order and returns the broker order ID
	PlaceOrder(ctx context.Context, req models.OrderRequest) (string, error)

	// OrderState returns the latest state of a previously placed order
	OrderState(ctx context.Context, orderID string) (models.OrderState, error)

	// CancelOrder cancels a pending order
	CancelOrder(ctx context.Context, orderID string) error

	// NetPositions returns the day's net positions
	NetPositions(ctx context.Context) ([]models.NetPosition, error)
}

// ContractSelector picks the option contract to trade for a signal
// direction. The scanner package provides the production implementation.
type ContractSelector interface {
	Select(ctx context.Context, direction models.Direction) (models.OptionQuote, error)
}

// transienter is implemented by broker errors that are safe to retry
type transienter interface {
	Transient() bool
}

// isTransient reports whether err is a retryable broker failure
func isTransient(err error) bool {
	var t transienter
	if errors.As(err, &t) {
		return t.Transient()
	}
	return false
}

// auther is implemented by broker errors that mean the access token is no
// longer valid. Auth failures end the session and are never retried.
type auther interface {
	Auth() bool
}

// isAuthError reports whether err invalidates the broker session
func isAuthError(err error) bool {
	var a auther
	if errors.As(err, &a) {
		return a.Auth()
	}
	return false
}
