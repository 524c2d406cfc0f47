// Package report renders one run's snapshot to files under a dated
// output directory: the full CSV table and a markdown companion listing
// what the run could not resolve or refresh.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bloomo/eod-engine/internal/engine"
	"github.com/bloomo/eod-engine/internal/fundcache"
	"github.com/bloomo/eod-engine/internal/observ"
)

const (
	snapshotFile = "eod_full.csv"
	missingFile  = "missing_stale.md"
)

var csvHeader = []string{
	"ticker", "name", "sector", "industry",
	"price", "price_source", "price_as_of", "price_jpy",
	"pe", "ps", "dividend_yield", "next_event",
	"income_as_of", "balance_as_of", "cashflow_as_of", "fundamentals_stale",
}

// Write renders the snapshot under outDir/YYYY-MM-DD/ and returns that
// directory. Existing files for the same date are overwritten; a rerun
// supersedes the earlier one.
func Write(outDir string, snap *engine.Snapshot) (string, error) {
	dir := filepath.Join(outDir, snap.Date.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	if err := writeCSV(filepath.Join(dir, snapshotFile), snap); err != nil {
		return "", err
	}
	if err := writeMissing(filepath.Join(dir, missingFile), snap); err != nil {
		return "", err
	}
	observ.Log("report_written", map[string]any{"dir": dir, "rows": len(snap.Rows), "missing": len(snap.Missing)})
	return dir, nil
}

func writeCSV(path string, snap *engine.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w := csv.NewWriter(f)
	werr := w.Write(csvHeader)
	for _, row := range snap.Rows {
		if werr != nil {
			break
		}
		werr = w.Write(csvRow(row))
	}
	w.Flush()
	if werr == nil {
		werr = w.Error()
	}
	if werr != nil {
		f.Close()
		return werr
	}
	return f.Close()
}

func csvRow(row engine.Row) []string {
	rec := []string{
		row.Ticker, row.Name, row.Sector, row.Industry,
		floatCell(row.Price), row.PriceSource, timeCell(row.PriceAsOf), floatCell(row.PriceJPY),
		floatCell(row.PE), floatCell(row.PS), floatCell(row.DividendYield), row.NextEvent,
	}
	stale := false
	for _, kind := range fundcache.Kinds {
		st, ok := row.Fundamentals[kind]
		if !ok {
			rec = append(rec, "")
			continue
		}
		rec = append(rec, timeCell(st.FetchedAt))
		if st.Stale {
			stale = true
		}
	}
	return append(rec, strconv.FormatBool(stale))
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func timeCell(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// writeMissing emits the human-readable side channel: every unresolved
// field, then every statement served past its refresh threshold.
func writeMissing(path string, snap *engine.Snapshot) error {
	var b strings.Builder
	fmt.Fprintf(&b, "# Missing & stale report for %s\n\n", snap.Date.Format("2006-01-02"))

	b.WriteString("## Missing fields\n\n")
	if len(snap.Missing) == 0 {
		b.WriteString("Nothing missing.\n")
	} else {
		missing := append([]engine.Missing(nil), snap.Missing...)
		sort.Slice(missing, func(i, j int) bool {
			if missing[i].Symbol != missing[j].Symbol {
				return missing[i].Symbol < missing[j].Symbol
			}
			return missing[i].Field < missing[j].Field
		})
		b.WriteString("| Symbol | Field | Reason |\n|---|---|---|\n")
		for _, m := range missing {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", m.Symbol, m.Field, m.Reason)
		}
	}

	b.WriteString("\n## Stale fundamentals\n\n")
	staleLines := 0
	for _, row := range snap.Rows {
		for _, kind := range fundcache.Kinds {
			st, ok := row.Fundamentals[kind]
			if !ok || !st.Stale {
				continue
			}
			age := int(snap.Date.Sub(st.FetchedAt).Hours() / 24)
			fmt.Fprintf(&b, "- %s %s: %d days old\n", row.Ticker, kind, age)
			staleLines++
		}
	}
	if staleLines == 0 {
		b.WriteString("Nothing stale.\n")
	}

	if len(snap.Rotated) > 0 {
		b.WriteString("\n## Rotation window\n\n")
		fmt.Fprintf(&b, "Forced refresh today: %s\n", strings.Join(snap.Rotated, ", "))
	}

	return os.WriteFile(path, []byte(b.String()), 0o644)
}
