// Command rotation previews the forced-refresh schedule: which symbols
// each upcoming day's window covers, given the configured universe and
// fundamentals budget. Useful for checking when a particular symbol
// will next be refreshed without spending any API calls.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bloomo/eod-engine/internal/config"
	"github.com/bloomo/eod-engine/internal/fundcache"
	"github.com/bloomo/eod-engine/internal/rotation"
	"github.com/bloomo/eod-engine/internal/universe"
)

func main() {
	var cfgPath string
	var from string
	var days int
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "config path")
	flag.StringVar(&from, "from", "", "start date YYYY-MM-DD (default today)")
	flag.IntVar(&days, "days", 14, "days to preview")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	tickers, err := universe.Load(cfg.UniversePath)
	if err != nil {
		log.Fatalf("load universe: %v", err)
	}
	symbols := universe.Symbols(tickers)

	start := time.Now().UTC()
	if from != "" {
		start, err = time.Parse("2006-01-02", from)
		if err != nil {
			log.Fatalf("parse -from: %v", err)
		}
	}

	quota := rotation.Quota(cfg.Budgets.FundamentalsDaily, len(fundcache.Kinds))
	fmt.Printf("universe=%d quota=%d/day (budget %d, %d calls per symbol)\n",
		len(symbols), quota, cfg.Budgets.FundamentalsDaily, len(fundcache.Kinds))
	if quota < len(symbols) {
		fmt.Printf("full coverage every %d days\n", (len(symbols)+quota-1)/quota)
	}

	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		eligible := rotation.Eligible(symbols, d, quota)
		fmt.Printf("%s  %s\n", d.Format("2006-01-02"), strings.Join(eligible, " "))
	}
}
