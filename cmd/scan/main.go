// Command scan lists the option contracts currently inside the premium
// band, without trading anything. Useful for checking the chain before the
// session.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"

	"niftytrader-go/src/kite"
	"niftytrader-go/src/models"
	"niftytrader-go/src/scanner"
)

func main() {
	optType := flag.String("type", "both", "option type to scan: CE, PE or both")
	strikeMin := flag.Float64("strike-min", 0, "lowest strike to include (default from config)")
	strikeMax := flag.Float64("strike-max", 0, "highest strike to include (default from config)")
	premiumMin := flag.Float64("premium-min", 0, "lower premium bound, exclusive (default from config)")
	premiumMax := flag.Float64("premium-max", 0, "upper premium bound, exclusive (default from config)")
	flag.Parse()

	_ = godotenv.Load()
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	client, err := kite.NewClientFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	cfg := scanner.DefaultConfig()
	if *strikeMin > 0 {
		cfg.StrikeMin = *strikeMin
	}
	if *strikeMax > 0 {
		cfg.StrikeMax = *strikeMax
	}
	if *premiumMin > 0 {
		cfg.PremiumMin = *premiumMin
	}
	if *premiumMax > 0 {
		cfg.PremiumMax = *premiumMax
	}

	s := scanner.New(log, client, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var directions []models.Direction
	switch *optType {
	case "CE", "ce":
		directions = []models.Direction{models.DirectionLong}
	case "PE", "pe":
		directions = []models.Direction{models.DirectionShort}
	default:
		directions = []models.Direction{models.DirectionLong, models.DirectionShort}
	}

	for _, dir := range directions {
		quotes, err := s.Scan(ctx, dir)
		if errors.Is(err, scanner.ErrNoCandidate) {
			fmt.Printf("%s: no contracts inside (%.0f, %.0f)\n", dir, cfg.PremiumMin, cfg.PremiumMax)
			continue
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		printQuotes(dir, quotes)
	}
}

func printQuotes(dir models.Direction, quotes []models.OptionQuote) {
	fmt.Printf("\n%s candidates (best first)\n", dir)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Symbol", "Strike", "Expiry", "LTP", "Volume", "OI", "Chg%"})
	for _, q := range quotes {
		table.Append([]string{
			q.Symbol,
			fmt.Sprintf("%.0f", q.Strike),
			q.Expiry.Format("2006-01-02"),
			fmt.Sprintf("%.2f", q.LTP),
			fmt.Sprintf("%.0f", q.Volume),
			fmt.Sprintf("%.0f", q.OI),
			fmt.Sprintf("%+.2f", q.ChangePct),
		})
	}
	table.Render()
}
