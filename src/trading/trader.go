package trading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"niftytrader-go/src/models"
	"niftytrader-go/src/strategy"
)

// State is the trader lifecycle state
type State int

const (
	StateIdle State = iota
	StateArmedWaiting
	StatePositionOpen
	StateClosing
	StateSessionEnded
)

// String returns a human readable state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateArmedWaiting:
		return "ARMED"
	case StatePositionOpen:
		return "POSITION_OPEN"
	case StateClosing:
		return "CLOSING"
	case StateSessionEnded:
		return "SESSION_ENDED"
	default:
		return "UNKNOWN"
	}
}

// Notifier receives trade lifecycle events. Implementations must not block.
type Notifier interface {
	PositionOpened(p models.Position)
	PositionClosed(rec models.TradeRecord)
	SessionSummary(s Summary)
	Alert(msg string)
}

// StatusSink receives a status snapshot after every trader step
type StatusSink interface {
	Update(s StatusSnapshot)
}

// StatusSnapshot is the trader state pushed to the console display
type StatusSnapshot struct {
	Time     time.Time
	State    State
	Primary  strategy.Verdict
	Confirm  strategy.Verdict
	Position *models.Position
	Contract models.OptionQuote
	Summary  Summary
}

// TraderConfig holds the order and cadence settings of the trader
type TraderConfig struct {
	Exchange     string
	Product      string
	OrderType    string
	RiskFraction float64

	PollInterval time.Duration
	OrderRetries int
	RetryBackoff time.Duration
	FillTimeout  time.Duration
	FillPoll     time.Duration

	// InsufficientFundsCooldown pauses entry scanning after the balance
	// could not cover a single lot.
	InsufficientFundsCooldown time.Duration
}

// DefaultTraderConfig returns the production settings
func DefaultTraderConfig() TraderConfig {
	return TraderConfig{
		Exchange:                  "NFO",
		Product:                   models.ProductIntraday,
		OrderType:                 models.OrderTypeMarket,
		RiskFraction:              0.90,
		PollInterval:              5 * time.Second,
		OrderRetries:              3,
		RetryBackoff:              time.Second,
		FillTimeout:               15 * time.Second,
		FillPoll:                  500 * time.Millisecond,
		InsufficientFundsCooldown: time.Minute,
	}
}

// Trader runs the position lifecycle: armed and scanning, one open position,
// exit, re-arm. At most one position exists at any time and every position
// is flat by the session close.
type Trader struct {
	log      *logrus.Entry
	broker   Broker
	engine   *SignalEngine
	selector ContractSelector
	window   SessionWindow
	ledger   *DailyLedger
	notifier Notifier
	status   StatusSink
	cfg      TraderConfig
	now      func() time.Time

	state         State
	position      *models.Position
	contract      models.OptionQuote
	exitReason    string
	cooldownUntil time.Time
	fatalErr      error
}

// NewTrader wires the trader together. Notifier and status sink are optional
// and default to no-ops.
func NewTrader(log *logrus.Logger, broker Broker, engine *SignalEngine, selector ContractSelector, window SessionWindow, ledger *DailyLedger, cfg TraderConfig) *Trader {
	return &Trader{
		log:      log.WithField("component", "trader"),
		broker:   broker,
		engine:   engine,
		selector: selector,
		window:   window,
		ledger:   ledger,
		notifier: nopNotifier{},
		cfg:      cfg,
		now:      time.Now,
		state:    StateIdle,
	}
}

// SetNotifier installs a trade event notifier
func (t *Trader) SetNotifier(n Notifier) {
	if n != nil {
		t.notifier = n
	}
}

// SetStatusSink installs a console status sink
func (t *Trader) SetStatusSink(s StatusSink) {
	t.status = s
}

// State returns the current lifecycle state
func (t *Trader) State() State { return t.state }

// Ledger returns the day's trade ledger
func (t *Trader) Ledger() *DailyLedger { return t.ledger }

// Position returns a copy of the open position, nil when flat
func (t *Trader) Position() *models.Position {
	if t.position == nil {
		return nil
	}
	p := *t.position
	return &p
}

// Run drives the trader until the session ends or the context is cancelled.
// Cancellation force-exits any open position before returning. A rejected
// access token ends the session and is returned to the caller.
func (t *Trader) Run(ctx context.Context) error {
	t.log.WithField("poll", t.cfg.PollInterval).Info("Trader started")
	t.reconcile(ctx)
	if t.state == StateSessionEnded {
		t.finishSession()
		return t.fatalErr
	}

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if t.position != nil {
				exitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				t.closePosition(exitCtx, "session_end")
				cancel()
			}
			t.finishSession()
			return ctx.Err()
		case <-ticker.C:
			t.Step(ctx)
			if t.state == StateSessionEnded {
				t.finishSession()
				return t.fatalErr
			}
		}
	}
}

// Step executes one poll cycle of the state machine
func (t *Trader) Step(ctx context.Context) {
	now := t.now()
	defer t.pushStatus(now)

	if !t.window.IsOpen(now) {
		if t.position != nil {
			t.closePosition(ctx, "session_end")
		}
		if now.In(t.window.Location).After(t.window.closeAt(now)) {
			t.state = StateSessionEnded
		}
		return
	}

	switch t.state {
	case StateIdle:
		t.log.Info("Market open, armed for entries")
		t.state = StateArmedWaiting
	case StateArmedWaiting:
		t.scanForEntry(ctx, now)
	case StatePositionOpen:
		t.managePosition(ctx, now)
	case StateClosing:
		// A previous exit attempt failed; retry with the same reason.
		t.closePosition(ctx, t.exitReason)
	}
}

// scanForEntry checks the combined signal and opens a position when it fires
func (t *Trader) scanForEntry(ctx context.Context, now time.Time) {
	if now.Before(t.cooldownUntil) {
		return
	}

	verdict, err := t.engine.Signal(ctx, now)
	if err != nil {
		if t.failSession(ctx, err) {
			return
		}
		t.log.WithError(err).Warn("Signal evaluation failed")
		return
	}
	if !verdict.Overall {
		return
	}
	if !t.window.AllowNewEntries(now) {
		t.log.WithFields(logrus.Fields{
			"direction": verdict.Direction.String(),
			"to_close":  t.window.TimeToClose(now).Round(time.Second),
		}).Info("Entry signal ignored inside the pre-close cutoff")
		return
	}

	t.openPosition(ctx, now, verdict)
}

// openPosition selects a contract, sizes it against the live balance and
// submits the entry order. Both option legs are bought: calls for a long
// signal, puts for a short signal.
func (t *Trader) openPosition(ctx context.Context, now time.Time, verdict strategy.Verdict) {
	quote, err := t.selector.Select(ctx, verdict.Direction)
	if err != nil {
		t.log.WithError(err).WithField("direction", verdict.Direction.String()).
			Warn("No tradable contract for signal")
		return
	}

	balance, err := t.broker.AvailableBalance(ctx)
	if err != nil {
		if t.failSession(ctx, err) {
			return
		}
		t.log.WithError(err).Warn("Balance refresh failed, entry skipped")
		return
	}

	acct := models.AccountState{AvailableBalance: balance, RiskFraction: t.cfg.RiskFraction}
	qty := LotQuantity(acct, quote.LTP, quote.LotSize)
	if qty == 0 {
		t.log.WithFields(logrus.Fields{
			"balance":  balance,
			"premium":  quote.LTP,
			"lot_size": quote.LotSize,
		}).Warn("Insufficient capital for one lot, cooling down")
		t.cooldownUntil = now.Add(t.cfg.InsufficientFundsCooldown)
		return
	}

	tag := "nt-" + uuid.NewString()[:8]
	state, err := t.submitOrder(ctx, models.OrderRequest{
		Exchange:        t.cfg.Exchange,
		Symbol:          quote.Symbol,
		TransactionType: models.TransactionBuy,
		Quantity:        qty,
		Product:         t.cfg.Product,
		OrderType:       t.cfg.OrderType,
		Tag:             tag,
	})
	if err != nil {
		if t.failSession(ctx, err) {
			return
		}
		t.log.WithError(err).Error("Entry order failed")
		t.notifier.Alert(fmt.Sprintf("Entry order failed for %s: %v", quote.Symbol, err))
		return
	}

	entryPrice := state.AveragePrice
	if entryPrice == 0 {
		entryPrice = quote.LTP
	}
	t.position = &models.Position{
		Symbol:     quote.Symbol,
		Side:       verdict.Direction,
		Quantity:   qty,
		EntryPrice: entryPrice,
		EntryTime:  now,
		OrderID:    state.OrderID,
		Tag:        tag,
	}
	t.contract = quote
	t.state = StatePositionOpen

	t.log.WithFields(logrus.Fields{
		"symbol":   quote.Symbol,
		"side":     verdict.Direction.String(),
		"quantity": qty,
		"price":    entryPrice,
		"order_id": state.OrderID,
	}).Info("Position opened")
	t.notifier.PositionOpened(*t.position)
	t.confirmPosition(ctx)
}

// confirmPosition checks the broker's net quantity against the local
// position right after a fill. A mismatch is reported, not repaired.
func (t *Trader) confirmPosition(ctx context.Context) {
	if t.position == nil {
		return
	}
	positions, err := t.broker.NetPositions(ctx)
	if err != nil {
		t.log.WithError(err).Warn("Post-fill position check failed")
		return
	}
	for _, p := range positions {
		if p.Symbol != t.position.Symbol {
			continue
		}
		if p.Quantity != t.position.Quantity {
			t.log.WithFields(logrus.Fields{
				"symbol": p.Symbol,
				"local":  t.position.Quantity,
				"broker": p.Quantity,
			}).Warn("Broker quantity differs from local position")
			t.notifier.Alert(fmt.Sprintf(
				"Quantity mismatch on %s: local %d, broker %d",
				p.Symbol, t.position.Quantity, p.Quantity))
		}
		return
	}
	t.log.WithField("symbol", t.position.Symbol).Warn("Filled position missing from broker book")
}

// managePosition evaluates exit triggers for the open position
func (t *Trader) managePosition(ctx context.Context, now time.Time) {
	exit, reason, err := t.engine.ExitSignal(ctx, now, t.position.Side)
	if err != nil {
		if t.failSession(ctx, err) {
			return
		}
		t.log.WithError(err).Warn("Exit evaluation failed")
		return
	}
	if exit {
		t.closePosition(ctx, reason)
	}
}

// closePosition sells the open position and records the round trip. On
// failure the position stays open and the close is retried on the next
// cycle.
func (t *Trader) closePosition(ctx context.Context, reason string) {
	if t.position == nil {
		t.state = StateArmedWaiting
		return
	}
	t.state = StateClosing
	t.exitReason = reason
	pos := t.position

	state, err := t.submitOrder(ctx, models.OrderRequest{
		Exchange:        t.cfg.Exchange,
		Symbol:          pos.Symbol,
		TransactionType: models.TransactionSell,
		Quantity:        pos.Quantity,
		Product:         t.cfg.Product,
		OrderType:       t.cfg.OrderType,
		Tag:             pos.Tag,
	})
	if err != nil {
		t.log.WithError(err).WithField("symbol", pos.Symbol).Error("Exit order failed")
		t.notifier.Alert(fmt.Sprintf("Exit order failed for %s: %v", pos.Symbol, err))
		t.failSession(ctx, err)
		return
	}

	exitPrice := state.AveragePrice
	if exitPrice == 0 {
		exitPrice = t.markPrice(ctx, pos.Symbol)
	}
	pnl := (exitPrice - pos.EntryPrice) * float64(pos.Quantity)
	pnlPct := 0.0
	if pos.EntryPrice > 0 {
		pnlPct = (exitPrice - pos.EntryPrice) / pos.EntryPrice * 100
	}

	rec := models.TradeRecord{
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		PnL:        pnl,
		PnLPercent: pnlPct,
		ExitReason: reason,
		EntryTime:  pos.EntryTime,
		ExitTime:   t.now(),
	}
	t.ledger.Add(rec)

	t.log.WithFields(logrus.Fields{
		"symbol": pos.Symbol,
		"reason": reason,
		"exit":   exitPrice,
		"pnl":    fmt.Sprintf("%.2f", pnl),
	}).Info("Position closed")
	t.notifier.PositionClosed(rec)

	t.position = nil
	t.exitReason = ""
	t.state = StateArmedWaiting
}

// markPrice returns the latest traded premium of the contract. Falls back to
// the last quoted premium when the lookup fails.
func (t *Trader) markPrice(ctx context.Context, symbol string) float64 {
	key := t.cfg.Exchange + ":" + symbol
	if ltps, err := t.broker.LTP(ctx, key); err == nil && ltps[key] > 0 {
		return ltps[key]
	}
	t.log.WithField("symbol", symbol).Warn("Mark price lookup failed, using last quote")
	return t.contract.LTP
}

// failSession ends the session when the broker rejects the access token. An
// expired token can never be retried; any open position is force-exited and
// the error is surfaced from Run. Returns false for every other error.
func (t *Trader) failSession(ctx context.Context, err error) bool {
	if !isAuthError(err) {
		return false
	}
	if t.fatalErr == nil {
		t.fatalErr = err
		t.log.WithError(err).Error("Access token rejected, ending session")
		t.notifier.Alert(fmt.Sprintf("Access token rejected, trading stopped: %v", err))
		if t.position != nil {
			t.closePosition(ctx, "session_end")
		}
	}
	t.state = StateSessionEnded
	return true
}

// submitOrder places an order and waits for it to reach a terminal state.
// Transient placement failures are retried with doubling backoff; rejections
// are returned as errors.
func (t *Trader) submitOrder(ctx context.Context, req models.OrderRequest) (models.OrderState, error) {
	var lastErr error
	backoff := t.cfg.RetryBackoff

	for attempt := 1; attempt <= t.cfg.OrderRetries; attempt++ {
		orderID, err := t.broker.PlaceOrder(ctx, req)
		if err != nil {
			if !isTransient(err) {
				return models.OrderState{}, err
			}
			lastErr = err
			t.log.WithError(err).WithField("attempt", attempt).Warn("Order placement failed, retrying")
			select {
			case <-ctx.Done():
				return models.OrderState{}, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		state, err := t.awaitFill(ctx, orderID)
		if err != nil {
			return models.OrderState{}, err
		}
		if !state.Filled() {
			return state, fmt.Errorf("order %s %s: %s",
				orderID, strings.ToLower(state.Status), state.StatusMessage)
		}
		return state, nil
	}
	return models.OrderState{}, fmt.Errorf("order not placed after %d attempts: %w", t.cfg.OrderRetries, lastErr)
}

// awaitFill polls the order until it reaches a terminal state or the fill
// timeout expires.
func (t *Trader) awaitFill(ctx context.Context, orderID string) (models.OrderState, error) {
	deadline := time.Now().Add(t.cfg.FillTimeout)
	for {
		state, err := t.broker.OrderState(ctx, orderID)
		if err != nil && !isTransient(err) {
			return models.OrderState{}, err
		}
		if err == nil {
			state.OrderID = orderID
			if state.Terminal() {
				return state, nil
			}
		}
		if time.Now().After(deadline) {
			// The order may still fill at the broker; cancel it so an
			// abandoned attempt cannot turn into an untracked position.
			if cErr := t.broker.CancelOrder(ctx, orderID); cErr != nil {
				t.log.WithError(cErr).WithField("order_id", orderID).Warn("Cancel of unfilled order failed")
				t.notifier.Alert(fmt.Sprintf("Order %s unfilled and cancel failed: %v", orderID, cErr))
			} else {
				t.log.WithField("order_id", orderID).Warn("Order not filled in time, cancelled")
			}
			return models.OrderState{}, fmt.Errorf("order %s not filled within %s", orderID, t.cfg.FillTimeout)
		}
		select {
		case <-ctx.Done():
			return models.OrderState{}, ctx.Err()
		case <-time.After(t.cfg.FillPoll):
		}
	}
}

// reconcile warns about broker-side positions this trader does not track.
// Foreign positions are never adopted.
func (t *Trader) reconcile(ctx context.Context) {
	positions, err := t.broker.NetPositions(ctx)
	if err != nil {
		if t.failSession(ctx, err) {
			return
		}
		t.log.WithError(err).Warn("Position reconciliation failed")
		return
	}
	for _, p := range positions {
		if p.Quantity == 0 {
			continue
		}
		t.log.WithFields(logrus.Fields{
			"symbol":   p.Symbol,
			"quantity": p.Quantity,
		}).Warn("Untracked broker position found, not adopting")
		t.notifier.Alert(fmt.Sprintf("Untracked position at broker: %s qty %d", p.Symbol, p.Quantity))
	}
}

// finishSession emits the daily summary once
func (t *Trader) finishSession() {
	s := t.ledger.Summary()
	t.log.WithFields(logrus.Fields{
		"trades":  s.TotalTrades,
		"net_pnl": fmt.Sprintf("%.2f", s.NetPnL),
	}).Info("Session ended")
	t.notifier.SessionSummary(s)
}

// pushStatus sends the current snapshot to the status sink
func (t *Trader) pushStatus(now time.Time) {
	if t.status == nil {
		return
	}
	primary, confirm := t.engine.Verdicts()
	t.status.Update(StatusSnapshot{
		Time:     now,
		State:    t.state,
		Primary:  primary,
		Confirm:  confirm,
		Position: t.Position(),
		Contract: t.contract,
		Summary:  t.ledger.Summary(),
	})
}

type nopNotifier struct{}

func (nopNotifier) PositionOpened(models.Position)    {}
func (nopNotifier) PositionClosed(models.TradeRecord) {}
func (nopNotifier) SessionSummary(Summary)            {}
func (nopNotifier) Alert(string)                      {}
