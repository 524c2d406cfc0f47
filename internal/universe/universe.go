// Package universe loads the ordered list of tracked tickers. The
// file's order matters: the rotation scheduler indexes into it.
package universe

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Ticker is one tracked instrument.
type Ticker struct {
	Ticker     string `json:"ticker"`
	Name       string `json:"name"`
	Sector     string `json:"sector,omitempty"`
	Industry   string `json:"industry,omitempty"`
	AssetClass string `json:"asset_class,omitempty"`
	TaxFlag    string `json:"tax_flag,omitempty"`
}

// Load reads a JSON array of ticker records, preserving order and
// rejecting duplicates (a duplicate would distort rotation coverage).
func Load(path string) ([]Ticker, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}
	var tickers []Ticker
	if err := json.Unmarshal(b, &tickers); err != nil {
		return nil, fmt.Errorf("parse universe: %w", err)
	}

	seen := make(map[string]bool, len(tickers))
	for i := range tickers {
		sym := strings.ToUpper(strings.TrimSpace(tickers[i].Ticker))
		if sym == "" {
			return nil, fmt.Errorf("universe entry %d has empty ticker", i)
		}
		if seen[sym] {
			return nil, fmt.Errorf("duplicate ticker %s in universe", sym)
		}
		seen[sym] = true
		tickers[i].Ticker = sym
	}
	return tickers, nil
}

// Symbols projects the ordered ticker symbols.
func Symbols(tickers []Ticker) []string {
	out := make([]string, len(tickers))
	for i, t := range tickers {
		out[i] = t.Ticker
	}
	return out
}
