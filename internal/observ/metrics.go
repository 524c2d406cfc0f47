package observ

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64   // name -> labelsKey -> count
	gauges   map[string]map[string]float64 // name -> labelsKey -> value
	hist     map[string]map[string][]float64
}

var reg = &registry{
	counters: map[string]map[string]int64{},
	gauges:   map[string]map[string]float64{},
	hist:     map[string]map[string][]float64{},
}

// canonicalize label map so key order is stable
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

func IncCounter(name string, labels map[string]string) {
	IncCounterBy(name, labels, 1)
}

func IncCounterBy(name string, labels map[string]string, value int64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	m[canonLabels(labels)] += value
}

func SetGauge(name string, value float64, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.gauges[name]
	if !ok {
		m = map[string]float64{}
		reg.gauges[name] = m
	}
	m[canonLabels(labels)] = value
}

// RecordDuration records a latency observation in milliseconds.
func RecordDuration(name string, d time.Duration, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.hist[name+"_ms"]
	if !ok {
		m = map[string][]float64{}
		reg.hist[name+"_ms"] = m
	}
	k := canonLabels(labels)
	m[k] = append(m[k], float64(d.Milliseconds()))
}

// CounterTotal sums a counter across all label sets.
func CounterTotal(name string) int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	var total int64
	for _, v := range reg.counters[name] {
		total += v
	}
	return total
}

// LogSummary dumps the registry as a single run-summary event. The engine
// is a batch process, so this replaces a scrape endpoint.
func LogSummary() {
	reg.mu.Lock()
	counters := map[string]int64{}
	for name, m := range reg.counters {
		for k, v := range m {
			key := name
			if k != "" {
				key = name + "{" + k + "}"
			}
			counters[key] = v
		}
	}
	gauges := map[string]float64{}
	for name, m := range reg.gauges {
		for k, v := range m {
			key := name
			if k != "" {
				key = name + "{" + k + "}"
			}
			gauges[key] = v
		}
	}
	reg.mu.Unlock()
	Log("run_metrics", map[string]any{
		"counters": counters,
		"gauges":   gauges,
	})
}

// Reset clears the registry between test runs.
func Reset() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.counters = map[string]map[string]int64{}
	reg.gauges = map[string]map[string]float64{}
	reg.hist = map[string]map[string][]float64{}
}
