package tracker

import (
	"sort"
	"time"
)

// HistoryLimit bounds stored rank history to the most recent 30 days
// plus the day being written.
const HistoryLimit = 31

// DayKey formats t as the calendar-day key used in keyword history maps.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// TrimHistory returns a copy of history bounded to HistoryLimit entries,
// keeping the most recent calendar days. The today key, if present, is
// always retained. Trimming runs on every successful write, not just
// when the map is over the limit.
func TrimHistory(history map[string]int, today string) map[string]int {
	out := make(map[string]int, len(history))
	for k, v := range history {
		out[k] = v
	}
	if len(out) <= HistoryLimit {
		return out
	}

	keys := make([]string, 0, len(out))
	for k := range out {
		if k == today {
			continue
		}
		keys = append(keys, k)
	}
	// Day keys are zero-padded ISO dates, so lexical order is date order.
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	keep := HistoryLimit
	if _, ok := out[today]; ok {
		keep--
	}
	for _, k := range keys[keep:] {
		delete(out, k)
	}
	return out
}
