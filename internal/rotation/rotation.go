// Package rotation decides which slice of the universe gets a forced
// fundamentals refresh on a given day.
//
// The schedule is pure index arithmetic over the calendar day number, so
// the same (date, universe, quota) always yields the same window and the
// windows tile the whole universe over time without any persisted state.
// The coverage guarantee only holds while universe size and quota stay
// constant; changing either resets coverage silently.
package rotation

import "time"

// unixEpochOrdinal is the proleptic-Gregorian day number of
// 1970-01-01, counting 0001-01-01 as day 1.
const unixEpochOrdinal = 719163

// Ordinal returns the proleptic-Gregorian day number of the date.
// Computed from Unix days, not a time.Sub: a Duration caps out around
// 292 years and would saturate for any modern date.
func Ordinal(d time.Time) int {
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return int(midnight.Unix()/86400) + unixEpochOrdinal
}

// Quota converts a daily call budget into a per-day symbol quota,
// never below one.
func Quota(dailyBudget, callsPerSymbol int) int {
	if callsPerSymbol <= 0 {
		callsPerSymbol = 1
	}
	q := dailyBudget / callsPerSymbol
	if q < 1 {
		q = 1
	}
	return q
}

// Window maps (day ordinal, universe size, quota) to the refresh window
// [start, start+count) mod n.
func Window(ordinal, n, quota int) (start, count int) {
	if n <= 0 {
		return 0, 0
	}
	if quota < 1 {
		quota = 1
	}
	start = (ordinal * quota) % n
	if start < 0 {
		start += n
	}
	count = quota
	if count > n {
		count = n
	}
	return start, count
}

// Eligible returns the ordered subset of tickers force-refreshed on the
// given date, wrapping around the end of the universe.
func Eligible(tickers []string, date time.Time, quota int) []string {
	start, count := Window(Ordinal(date), len(tickers), quota)
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, tickers[(start+i)%len(tickers)])
	}
	return out
}

// EligibleSet is Eligible as a membership set, which is what the refresh
// decision actually consults.
func EligibleSet(tickers []string, date time.Time, quota int) map[string]bool {
	set := make(map[string]bool)
	for _, t := range Eligible(tickers, date, quota) {
		set[t] = true
	}
	return set
}
