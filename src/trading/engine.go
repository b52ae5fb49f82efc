package trading

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"niftytrader-go/src/indicators"
	"niftytrader-go/src/models"
	"niftytrader-go/src/strategy"
)

// Evaluator is the strategy rule surface the engine drives. The strategy
// package provides the production implementation; tests substitute stubs.
type Evaluator interface {
	EvaluateEntry(rows []models.IndicatorRow) strategy.Verdict
	EvaluateExit(rows []models.IndicatorRow, side models.Direction) (bool, string)
}

// EngineConfig configures the two analysis timeframes. The primary frame
// decides direction, the confirmation frame gates the actual entry and owns
// all exit decisions.
type EngineConfig struct {
	Token           int64 // underlying index instrument token
	PrimaryInterval string
	PrimaryRefresh  time.Duration
	ConfirmInterval string
	ConfirmRefresh  time.Duration
	Lookback        time.Duration // history window fetched on every refresh
}

// DefaultEngineConfig returns the production cadence: 5-minute candles
// refreshed every 10s for direction, 2-minute candles refreshed every 5s
// for confirmation and exits.
func DefaultEngineConfig(token int64) EngineConfig {
	return EngineConfig{
		Token:           token,
		PrimaryInterval: "5minute",
		PrimaryRefresh:  10 * time.Second,
		ConfirmInterval: "2minute",
		ConfirmRefresh:  5 * time.Second,
		Lookback:        5 * 24 * time.Hour,
	}
}

// timeframe holds the cached state of one analysis frame. The verdict is
// latched between refreshes so the two frames can be polled at different
// cadences.
type timeframe struct {
	interval  string
	refresh   time.Duration
	lastFetch time.Time
	rows      []models.IndicatorRow
	verdict   strategy.Verdict
}

// SignalEngine combines the two timeframes into a single trade signal
type SignalEngine struct {
	log     *logrus.Entry
	broker  Broker
	calc    *indicators.Calculator
	rules   Evaluator
	cfg     EngineConfig
	primary timeframe
	confirm timeframe
}

// NewSignalEngine creates an engine over the given broker and rule set
func NewSignalEngine(log *logrus.Logger, broker Broker, calc *indicators.Calculator, rules Evaluator, cfg EngineConfig) *SignalEngine {
	return &SignalEngine{
		log:     log.WithField("component", "engine"),
		broker:  broker,
		calc:    calc,
		rules:   rules,
		cfg:     cfg,
		primary: timeframe{interval: cfg.PrimaryInterval, refresh: cfg.PrimaryRefresh},
		confirm: timeframe{interval: cfg.ConfirmInterval, refresh: cfg.ConfirmRefresh},
	}
}

// Signal evaluates both timeframes at the given instant and returns the
// combined entry verdict. A trade signal requires both frames to agree on
// the same direction; a frame that has never been refreshed successfully
// contributes no signal.
func (e *SignalEngine) Signal(ctx context.Context, now time.Time) (strategy.Verdict, error) {
	if err := e.refreshFrame(ctx, &e.primary, now); err != nil {
		return strategy.Verdict{}, fmt.Errorf("refresh %s frame: %w", e.primary.interval, err)
	}
	if err := e.refreshFrame(ctx, &e.confirm, now); err != nil {
		return strategy.Verdict{}, fmt.Errorf("refresh %s frame: %w", e.confirm.interval, err)
	}

	p, c := e.primary.verdict, e.confirm.verdict
	if p.Overall && c.Overall && p.Direction == c.Direction {
		return strategy.Verdict{
			Overall:    true,
			Direction:  p.Direction,
			Conditions: c.Conditions,
			Row:        c.Row,
		}, nil
	}
	return strategy.Verdict{Conditions: c.Conditions, Row: c.Row}, nil
}

// ExitSignal evaluates the exit triggers for an open position. Exits run on
// the confirmation frame only so they react a full timeframe faster than the
// entry direction.
func (e *SignalEngine) ExitSignal(ctx context.Context, now time.Time, side models.Direction) (bool, string, error) {
	if err := e.refreshFrame(ctx, &e.confirm, now); err != nil {
		return false, "", fmt.Errorf("refresh %s frame: %w", e.confirm.interval, err)
	}
	exit, reason := e.rules.EvaluateExit(e.confirm.rows, side)
	return exit, reason, nil
}

// Verdicts returns the latched verdict of each frame for display
func (e *SignalEngine) Verdicts() (primary, confirm strategy.Verdict) {
	return e.primary.verdict, e.confirm.verdict
}

// refreshFrame refetches and reevaluates one frame if its cadence has
// elapsed. On fetch failure the previous latched verdict is kept.
func (e *SignalEngine) refreshFrame(ctx context.Context, f *timeframe, now time.Time) error {
	if !f.lastFetch.IsZero() && now.Sub(f.lastFetch) < f.refresh {
		return nil
	}

	candles, err := e.broker.HistoricalCandles(ctx, e.cfg.Token, f.interval, now.Add(-e.cfg.Lookback), now)
	if err != nil {
		return err
	}
	candles = dropForming(candles, f.interval, now)

	rows := e.calc.Compute(candles)
	if rows == nil {
		e.log.WithFields(logrus.Fields{
			"interval": f.interval,
			"candles":  len(candles),
			"need":     e.calc.Params().MinCandles(),
		}).Warn("Not enough candles to populate indicators")
		f.lastFetch = now
		f.rows = nil
		f.verdict = strategy.Verdict{}
		return nil
	}

	f.rows = rows
	f.verdict = e.rules.EvaluateEntry(rows)
	f.lastFetch = now
	return nil
}

// dropForming removes a trailing candle that is still in progress at the
// given instant. Signals must only ever see completed candles.
func dropForming(candles []models.Candle, interval string, now time.Time) []models.Candle {
	if len(candles) == 0 {
		return candles
	}
	d := intervalDuration(interval)
	if d <= 0 {
		return candles
	}
	last := candles[len(candles)-1]
	if last.Timestamp.Add(d).After(now) {
		return candles[:len(candles)-1]
	}
	return candles
}

// intervalDuration maps a broker interval name to its candle duration
func intervalDuration(interval string) time.Duration {
	if interval == "day" {
		return 24 * time.Hour
	}
	num := strings.TrimSuffix(interval, "minute")
	if num == interval {
		return 0
	}
	if num == "" {
		return time.Minute
	}
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Minute
}
