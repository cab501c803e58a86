package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDayKey(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, time.March, 7, 23, 59, 0, 0, time.UTC)
	require.Equal(t, "2026-03-07", DayKey(ts))
}

func TestTrimHistory_UnderLimitUnchanged(t *testing.T) {
	t.Parallel()

	history := map[string]int{
		"2026-01-01": 5,
		"2026-01-02": 4,
	}
	out := TrimHistory(history, "2026-01-02")
	require.Equal(t, history, out)
}

func TestTrimHistory_BoundsToLimit(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	history := make(map[string]int)
	for i := 0; i < 40; i++ {
		history[DayKey(base.AddDate(0, 0, i))] = i + 1
	}
	today := DayKey(base.AddDate(0, 0, 40))
	history[today] = 3

	out := TrimHistory(history, today)
	require.Len(t, out, HistoryLimit)
	require.Contains(t, out, today)
	// The oldest days are the ones dropped.
	require.NotContains(t, out, DayKey(base))
	require.Contains(t, out, DayKey(base.AddDate(0, 0, 39)))
}

func TestTrimHistory_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	history := make(map[string]int)
	for i := 0; i < 40; i++ {
		history[fmt.Sprintf("2026-02-%02d", i+1)] = i
	}
	TrimHistory(history, "2026-02-40")
	require.Len(t, history, 40)
}
