// Package notify pushes trade lifecycle events to Telegram. When the bot
// credentials are absent every call is a no-op, so the trader can run
// without external messaging.
package notify

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"niftytrader-go/src/models"
	"niftytrader-go/src/trading"
)

const sendTimeout = 10 * time.Second

// Telegram sends trade notifications through a Telegram bot
type Telegram struct {
	log        *logrus.Entry
	token      string
	chatID     string
	httpClient *http.Client
	enabled    bool
}

// NewTelegramFromEnv builds a notifier from TELEGRAM_BOT_TOKEN and
// TELEGRAM_CHAT_ID. Either being empty disables it.
func NewTelegramFromEnv(log *logrus.Logger) *Telegram {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	chatID := os.Getenv("TELEGRAM_CHAT_ID")

	t := &Telegram{
		log:        log.WithField("component", "notify"),
		token:      token,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: sendTimeout},
		enabled:    token != "" && chatID != "",
	}
	if !t.enabled {
		t.log.Info("Telegram notifications disabled, credentials not set")
	}
	return t
}

// Enabled reports whether notifications will actually be sent
func (t *Telegram) Enabled() bool { return t.enabled }

// PositionOpened announces a new position
func (t *Telegram) PositionOpened(p models.Position) {
	t.send(fmt.Sprintf(
		"ENTRY %s\nSide: %s\nQty: %d\nPrice: %.2f\nTime: %s",
		p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.EntryTime.Format("15:04:05"),
	))
}

// PositionClosed announces a completed round trip
func (t *Telegram) PositionClosed(rec models.TradeRecord) {
	t.send(fmt.Sprintf(
		"EXIT %s (%s)\nQty: %d\nEntry: %.2f  Exit: %.2f\nP&L: %.2f (%.2f%%)",
		rec.Symbol, rec.ExitReason, rec.Quantity, rec.EntryPrice, rec.ExitPrice,
		rec.PnL, rec.PnLPercent,
	))
}

// SessionSummary announces the end-of-day totals
func (t *Telegram) SessionSummary(s trading.Summary) {
	if s.TotalTrades == 0 {
		t.send("Session ended: no trades today")
		return
	}
	t.send(fmt.Sprintf(
		"Session ended\nTrades: %d (W %d / L %d, %.0f%%)\nNet P&L: %.2f\nBest: %.2f  Worst: %.2f",
		s.TotalTrades, s.Wins, s.Losses, s.WinRate, s.NetPnL, s.BestTrade, s.WorstTrade,
	))
}

// Alert sends a free-form warning
func (t *Telegram) Alert(msg string) {
	t.send("ALERT: " + msg)
}

// send delivers one message asynchronously; the trading loop must never
// block on Telegram.
func (t *Telegram) send(text string) {
	if !t.enabled {
		return
	}
	go func() {
		endpoint := "https://api.telegram.org/bot" + t.token + "/sendMessage"
		resp, err := t.httpClient.PostForm(endpoint, url.Values{
			"chat_id": {t.chatID},
			"text":    {text},
		})
		if err != nil {
			t.log.WithError(err).Warn("Telegram send failed")
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.log.WithField("status", resp.StatusCode).Warn("Telegram send rejected")
		}
	}()
}
