package budget

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bloomo/eod-engine/internal/observ"
)

// dayState is the persisted shape: usage counters keyed by provider for
// one calendar day. A file from a previous day is ignored, which makes
// the accounting per-calendar-day rather than per-process.
type dayState struct {
	Version int            `json:"version"`
	Date    string         `json:"date"` // YYYY-MM-DD, UTC
	Used    map[string]int `json:"used"`
	Saved   string         `json:"saved"`
}

const dayStateVersion = 1

// LoadDay restores today's used counters into the given ledgers. A
// missing file, a malformed file, or a file from another day all mean
// "nothing used yet" — never an error that blocks the run.
func LoadDay(path string, today time.Time, ledgers ...*Ledger) {
	b, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var st dayState
	if err := json.Unmarshal(b, &st); err != nil {
		observ.Log("budget_state_corrupt", map[string]any{"path": path, "error": err.Error()})
		return
	}
	if st.Date != today.UTC().Format("2006-01-02") {
		return
	}
	for _, l := range ledgers {
		if used, ok := st.Used[l.Provider()]; ok {
			l.restore(used)
		}
	}
	observ.Log("budget_state_loaded", map[string]any{"path": path, "date": st.Date})
}

// SaveDay persists today's used counters with a write-then-rename so an
// interrupted run never leaves a truncated state file.
func SaveDay(path string, today time.Time, ledgers ...*Ledger) error {
	st := dayState{
		Version: dayStateVersion,
		Date:    today.UTC().Format("2006-01-02"),
		Used:    map[string]int{},
		Saved:   time.Now().UTC().Format(time.RFC3339),
	}
	for _, l := range ledgers {
		st.Used[l.Provider()] = l.used()
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal budget state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write budget state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename budget state: %w", err)
	}
	return nil
}
