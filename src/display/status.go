// Package display renders the trader status and the daily summary to the
// terminal.
package display

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"

	"niftytrader-go/src/models"
	"niftytrader-go/src/trading"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	longStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	shortStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	alertStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

// Console prints a status block on every trader cycle. It implements
// trading.StatusSink.
type Console struct {
	out io.Writer
	mu  sync.Mutex

	// Interval throttles full indicator tables; state changes always print.
	Interval time.Duration

	lastPrint time.Time
	lastState trading.State
}

// NewConsole creates a console display writing to out
func NewConsole(out io.Writer) *Console {
	return &Console{out: out, Interval: 30 * time.Second}
}

// Update renders one status snapshot
func (c *Console) Update(s trading.StatusSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stateChanged := s.State != c.lastState
	if !stateChanged && time.Since(c.lastPrint) < c.Interval {
		return
	}
	c.lastPrint = time.Now()
	c.lastState = s.State

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, headerStyle.Render(fmt.Sprintf(
		"%s  %s", s.Time.Format("15:04:05"), stateLabel(s.State),
	)))

	c.renderFrames(s)

	if s.Position != nil {
		p := s.Position
		fmt.Fprintln(c.out, renderDirection(p.Side)+fmt.Sprintf(
			"  %s  qty %d @ %.2f  since %s",
			p.Symbol, p.Quantity, p.EntryPrice, p.EntryTime.Format("15:04:05"),
		))
	}

	if s.Summary.TotalTrades > 0 {
		fmt.Fprintln(c.out, dimStyle.Render(fmt.Sprintf(
			"today: %d trades, net %+.2f (W %d / L %d)",
			s.Summary.TotalTrades, s.Summary.NetPnL, s.Summary.Wins, s.Summary.Losses,
		)))
	}
}

// renderFrames prints the indicator agreement table for both timeframes
func (c *Console) renderFrames(s trading.StatusSnapshot) {
	p, cf := s.Primary.Row, s.Confirm.Row

	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"", "5MIN", "2MIN"})
	table.SetBorder(false)
	table.SetColumnSeparator(" ")

	table.Append([]string{"close", fmtNum(p.Close), fmtNum(cf.Close)})
	table.Append([]string{"supertrend", trendCell(p.SuperTrendDir, p.SuperTrend), trendCell(cf.SuperTrendDir, cf.SuperTrend)})
	table.Append([]string{"ema 8/9", emaCell(p.EMAFast, p.EMASlow), emaCell(cf.EMAFast, cf.EMASlow)})
	table.Append([]string{"rsi", fmtNum(p.RSI), fmtNum(cf.RSI)})
	table.Append([]string{"stochrsi %k", fmtNum(p.StochRSIK), fmtNum(cf.StochRSIK)})
	table.Append([]string{"macd hist", fmtNum(p.MACDHist), fmtNum(cf.MACDHist)})
	table.Append([]string{"signal", verdictCell(s.Primary.Overall, s.Primary.Direction), verdictCell(s.Confirm.Overall, s.Confirm.Direction)})
	table.Render()
}

// RenderSummary prints the end-of-day trade table and totals
func RenderSummary(out io.Writer, summary trading.Summary, records []models.TradeRecord) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, headerStyle.Render("DAILY SUMMARY"))

	if summary.TotalTrades == 0 {
		fmt.Fprintln(out, dimStyle.Render("no trades today"))
		return
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Time", "Symbol", "Side", "Qty", "Entry", "Exit", "P&L", "Reason"})
	table.SetBorder(false)
	for _, rec := range records {
		table.Append([]string{
			rec.ExitTime.Format("15:04:05"),
			rec.Symbol,
			rec.Side.String(),
			fmt.Sprintf("%d", rec.Quantity),
			fmt.Sprintf("%.2f", rec.EntryPrice),
			fmt.Sprintf("%.2f", rec.ExitPrice),
			fmt.Sprintf("%+.2f", rec.PnL),
			rec.ExitReason,
		})
	}
	table.Render()

	fmt.Fprintf(out, "trades: %d  win rate: %.0f%%  net: %+.2f  best: %+.2f  worst: %+.2f\n",
		summary.TotalTrades, summary.WinRate, summary.NetPnL, summary.BestTrade, summary.WorstTrade)
}

func stateLabel(s trading.State) string {
	switch s {
	case trading.StatePositionOpen, trading.StateClosing:
		return alertStyle.Render(s.String())
	default:
		return s.String()
	}
}

func renderDirection(d models.Direction) string {
	switch d {
	case models.DirectionLong:
		return longStyle.Render("LONG")
	case models.DirectionShort:
		return shortStyle.Render("SHORT")
	default:
		return dimStyle.Render("FLAT")
	}
}

func verdictCell(overall bool, d models.Direction) string {
	if !overall {
		return dimStyle.Render("-")
	}
	return renderDirection(d)
}

func trendCell(d models.Direction, value float64) string {
	if d == models.DirectionNone {
		return dimStyle.Render("-")
	}
	return renderDirection(d) + " " + fmtNum(value)
}

func emaCell(fast, slow float64) string {
	if math.IsNaN(fast) || math.IsNaN(slow) {
		return dimStyle.Render("-")
	}
	cmp := ">"
	if fast < slow {
		cmp = "<"
	}
	return fmt.Sprintf("%.2f %s %.2f", fast, cmp, slow)
}

func fmtNum(v float64) string {
	if math.IsNaN(v) || v == 0 {
		return dimStyle.Render("-")
	}
	return fmt.Sprintf("%.2f", v)
}
