// Package scanner finds the option contract to trade: the nearest-expiry
// strike whose premium sits inside the configured band, closest to the
// money.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"niftytrader-go/src/kite"
	"niftytrader-go/src/models"
)

// ErrNoCandidate is returned when no contract currently trades inside the
// premium band.
var ErrNoCandidate = errors.New("scanner: no contract inside the premium band")

// MarketSource is the quote and instrument surface the scanner needs
type MarketSource interface {
	Instruments(ctx context.Context, exchange string) ([]models.Instrument, error)
	Quotes(ctx context.Context, keys ...string) (map[string]kite.Quote, error)
	LTP(ctx context.Context, keys ...string) (map[string]float64, error)
}

// Config holds the contract filter settings
type Config struct {
	Underlying string // instrument name in the dump, e.g. "NIFTY"
	Exchange   string // derivatives exchange, e.g. "NFO"
	SpotKey    string // quote key of the underlying index, e.g. "NSE:NIFTY 50"

	StrikeMin  float64
	StrikeMax  float64
	StrikeStep float64

	// Premium band, both bounds exclusive
	PremiumMin float64
	PremiumMax float64

	// ExpiryTolerance accepts dumps whose expiry date lags a day behind
	// the session date.
	ExpiryTolerance time.Duration

	// QuoteBatch is the maximum instruments per quote request
	QuoteBatch int

	// UniverseTTL is how long the instrument dump is cached
	UniverseTTL time.Duration
}

// DefaultConfig returns the production scanner settings
func DefaultConfig() Config {
	return Config{
		Underlying:      "NIFTY",
		Exchange:        "NFO",
		SpotKey:         "NSE:NIFTY 50",
		StrikeMin:       25000,
		StrikeMax:       26000,
		StrikeStep:      100,
		PremiumMin:      80,
		PremiumMax:      120,
		ExpiryTolerance: 24 * time.Hour,
		QuoteBatch:      500,
		UniverseTTL:     12 * time.Hour,
	}
}

// Scanner selects tradable option contracts from the live chain
type Scanner struct {
	log    *logrus.Entry
	client MarketSource
	cfg    Config
	now    func() time.Time

	mu       sync.Mutex
	universe []models.Instrument
	loadedAt time.Time
}

// New creates a scanner over the given market source
func New(log *logrus.Logger, client MarketSource, cfg Config) *Scanner {
	return &Scanner{
		log:    log.WithField("component", "scanner"),
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Select returns the contract to buy for the given signal direction: calls
// for long, puts for short.
func (s *Scanner) Select(ctx context.Context, direction models.Direction) (models.OptionQuote, error) {
	candidates, err := s.Scan(ctx, direction)
	if err != nil {
		return models.OptionQuote{}, err
	}

	best := candidates[0]
	s.log.WithFields(logrus.Fields{
		"symbol":  best.Symbol,
		"strike":  best.Strike,
		"premium": best.LTP,
	}).Info("Contract selected")
	return best, nil
}

// Scan returns every candidate for the given direction, best first.
// Candidates are nearest-expiry strikes inside the configured range whose
// premium falls strictly inside the band; the strike closest to the spot
// ranks first, premium distance to the band midpoint breaking ties.
func (s *Scanner) Scan(ctx context.Context, direction models.Direction) ([]models.OptionQuote, error) {
	var optType string
	switch direction {
	case models.DirectionLong:
		optType = "CE"
	case models.DirectionShort:
		optType = "PE"
	default:
		return nil, fmt.Errorf("scanner: no option type for direction %s", direction)
	}

	chain, err := s.chain(ctx, optType)
	if err != nil {
		return nil, err
	}
	if len(chain) == 0 {
		return nil, ErrNoCandidate
	}

	spot, err := s.spot(ctx)
	if err != nil {
		return nil, err
	}

	candidates, err := s.quoteChain(ctx, chain)
	if err != nil {
		return nil, err
	}

	inBand := candidates[:0]
	for _, c := range candidates {
		if c.LTP > s.cfg.PremiumMin && c.LTP < s.cfg.PremiumMax {
			inBand = append(inBand, c)
		}
	}
	if len(inBand) == 0 {
		s.log.WithFields(logrus.Fields{
			"type":    optType,
			"scanned": len(candidates),
			"band":    fmt.Sprintf("(%.0f, %.0f)", s.cfg.PremiumMin, s.cfg.PremiumMax),
		}).Debug("No contract inside premium band")
		return nil, ErrNoCandidate
	}

	mid := (s.cfg.PremiumMin + s.cfg.PremiumMax) / 2
	sort.Slice(inBand, func(i, j int) bool {
		di := math.Abs(inBand[i].Strike - spot)
		dj := math.Abs(inBand[j].Strike - spot)
		if di != dj {
			return di < dj
		}
		return math.Abs(inBand[i].LTP-mid) < math.Abs(inBand[j].LTP-mid)
	})
	return inBand, nil
}

// chain returns the nearest-expiry instruments of one option type inside
// the strike range.
func (s *Scanner) chain(ctx context.Context, optType string) ([]models.Instrument, error) {
	universe, err := s.instruments(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-s.cfg.ExpiryTolerance)
	var filtered []models.Instrument
	for _, inst := range universe {
		if inst.Name != s.cfg.Underlying || inst.OptionType != optType {
			continue
		}
		if inst.Strike < s.cfg.StrikeMin || inst.Strike > s.cfg.StrikeMax {
			continue
		}
		if s.cfg.StrikeStep > 0 && math.Mod(inst.Strike, s.cfg.StrikeStep) != 0 {
			continue
		}
		if inst.Expiry.IsZero() || inst.Expiry.Before(cutoff) {
			continue
		}
		filtered = append(filtered, inst)
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	nearest := filtered[0].Expiry
	for _, inst := range filtered[1:] {
		if inst.Expiry.Before(nearest) {
			nearest = inst.Expiry
		}
	}

	var chain []models.Instrument
	for _, inst := range filtered {
		if inst.Expiry.Sub(nearest) <= s.cfg.ExpiryTolerance {
			chain = append(chain, inst)
		}
	}
	return chain, nil
}

// quoteChain fetches live quotes for the chain in batches
func (s *Scanner) quoteChain(ctx context.Context, chain []models.Instrument) ([]models.OptionQuote, error) {
	bySymbol := make(map[string]models.Instrument, len(chain))
	keys := make([]string, 0, len(chain))
	for _, inst := range chain {
		key := s.cfg.Exchange + ":" + inst.Symbol
		bySymbol[key] = inst
		keys = append(keys, key)
	}

	batch := s.cfg.QuoteBatch
	if batch <= 0 {
		batch = 500
	}

	var out []models.OptionQuote
	for start := 0; start < len(keys); start += batch {
		end := start + batch
		if end > len(keys) {
			end = len(keys)
		}
		quotes, err := s.client.Quotes(ctx, keys[start:end]...)
		if err != nil {
			return nil, fmt.Errorf("scanner: fetch quotes: %w", err)
		}
		for key, q := range quotes {
			inst, ok := bySymbol[key]
			if !ok || q.LastPrice <= 0 {
				continue
			}
			changePct := 0.0
			if q.OHLC.Close > 0 {
				changePct = (q.LastPrice - q.OHLC.Close) / q.OHLC.Close * 100
			}
			out = append(out, models.OptionQuote{
				Instrument: inst,
				LTP:        q.LastPrice,
				Volume:     q.Volume,
				OI:         q.OI,
				ChangePct:  changePct,
			})
		}
	}
	return out, nil
}

// spot returns the underlying index level
func (s *Scanner) spot(ctx context.Context) (float64, error) {
	prices, err := s.client.LTP(ctx, s.cfg.SpotKey)
	if err != nil {
		return 0, fmt.Errorf("scanner: fetch spot: %w", err)
	}
	spot, ok := prices[s.cfg.SpotKey]
	if !ok || spot <= 0 {
		return 0, fmt.Errorf("scanner: no spot price for %s", s.cfg.SpotKey)
	}
	return spot, nil
}

// instruments returns the cached instrument dump, reloading when stale
func (s *Scanner) instruments(ctx context.Context) ([]models.Instrument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.universe != nil && s.now().Sub(s.loadedAt) < s.cfg.UniverseTTL {
		return s.universe, nil
	}

	universe, err := s.client.Instruments(ctx, s.cfg.Exchange)
	if err != nil {
		if s.universe != nil {
			s.log.WithError(err).Warn("Instrument reload failed, using cached dump")
			return s.universe, nil
		}
		return nil, fmt.Errorf("scanner: load instruments: %w", err)
	}

	s.universe = universe
	s.loadedAt = s.now()
	s.log.WithField("instruments", len(universe)).Info("Instrument dump loaded")
	return s.universe, nil
}
