package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"niftytrader-go/src/display"
	"niftytrader-go/src/indicators"
	"niftytrader-go/src/kite"
	"niftytrader-go/src/notify"
	"niftytrader-go/src/scanner"
	"niftytrader-go/src/strategy"
	"niftytrader-go/src/trading"
)

type appConfig struct {
	logLevel   string
	engine     trading.EngineConfig
	scanner    scanner.Config
	trader     trading.TraderConfig
	params     indicators.Params
	thresholds strategy.Thresholds
}

// loadConfigFromEnv builds the runtime configuration from environment
// variables, falling back to the production defaults.
func loadConfigFromEnv() appConfig {
	cfg := appConfig{
		logLevel:   envStr("LOG_LEVEL", "info"),
		engine:     trading.DefaultEngineConfig(envInt64("NIFTY_TOKEN", 256265)),
		scanner:    scanner.DefaultConfig(),
		trader:     trading.DefaultTraderConfig(),
		params:     indicators.DefaultParams(),
		thresholds: strategy.DefaultThresholds(),
	}

	cfg.engine.PrimaryInterval = envStr("PRIMARY_INTERVAL", cfg.engine.PrimaryInterval)
	cfg.engine.PrimaryRefresh = envDur("PRIMARY_REFRESH", cfg.engine.PrimaryRefresh)
	cfg.engine.ConfirmInterval = envStr("CONFIRM_INTERVAL", cfg.engine.ConfirmInterval)
	cfg.engine.ConfirmRefresh = envDur("CONFIRM_REFRESH", cfg.engine.ConfirmRefresh)

	cfg.scanner.StrikeMin = envFloat("STRIKE_MIN", cfg.scanner.StrikeMin)
	cfg.scanner.StrikeMax = envFloat("STRIKE_MAX", cfg.scanner.StrikeMax)
	cfg.scanner.StrikeStep = envFloat("STRIKE_STEP", cfg.scanner.StrikeStep)
	cfg.scanner.PremiumMin = envFloat("PREMIUM_MIN", cfg.scanner.PremiumMin)
	cfg.scanner.PremiumMax = envFloat("PREMIUM_MAX", cfg.scanner.PremiumMax)

	cfg.trader.RiskFraction = envFloat("RISK_FRACTION", cfg.trader.RiskFraction)
	cfg.trader.PollInterval = envDur("POLL_INTERVAL", cfg.trader.PollInterval)

	cfg.thresholds.RSIMax = envFloat("RSI_MAX", cfg.thresholds.RSIMax)
	cfg.thresholds.RSIMin = envFloat("RSI_MIN", cfg.thresholds.RSIMin)
	cfg.thresholds.StochRSI = envFloat("STOCHRSI_THRESHOLD", cfg.thresholds.StochRSI)

	return cfg
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	return log
}

func main() {
	_ = godotenv.Load()
	cfg := loadConfigFromEnv()
	log := newLogger(cfg.logLevel)

	client, err := kite.NewClientFromEnv()
	if err != nil {
		log.WithError(err).Fatal("Broker client init failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	calc := indicators.NewCalculator(cfg.params)
	rules := strategy.NewRules(cfg.thresholds)
	engine := trading.NewSignalEngine(log, client, calc, rules, cfg.engine)
	contracts := scanner.New(log, client, cfg.scanner)
	ledger := trading.NewDailyLedger()

	trader := trading.NewTrader(log, client, engine, contracts, trading.NSEWindow(), ledger, cfg.trader)
	trader.SetNotifier(notify.NewTelegramFromEnv(log))
	trader.SetStatusSink(display.NewConsole(os.Stdout))

	// Live index ticks are informational; the signal path runs on candles.
	ticker := kite.NewTicker(log, os.Getenv("KITE_API_KEY"), client.AccessToken())
	ticker.OnTick(func(tick kite.Tick) {
		log.WithFields(logrus.Fields{"token": tick.Token, "ltp": tick.LTP}).Debug("Tick")
	})
	if err := ticker.Connect(ctx); err != nil {
		log.WithError(err).Warn("Live ticker unavailable, continuing on REST quotes")
	} else {
		defer ticker.Close()
		if err := ticker.SubscribeLTP(cfg.engine.Token); err != nil {
			log.WithError(err).Warn("Index tick subscription failed")
		}
	}

	log.WithFields(logrus.Fields{
		"token":   cfg.engine.Token,
		"primary": cfg.engine.PrimaryInterval,
		"confirm": cfg.engine.ConfirmInterval,
		"band":    []float64{cfg.scanner.PremiumMin, cfg.scanner.PremiumMax},
	}).Info("Starting trader")

	if err := trader.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("Trader stopped with error")
	}

	display.RenderSummary(os.Stdout, ledger.Summary(), ledger.Records())
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
