package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ranklens/ranklens/internal/tracker"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedDomain(t *testing.T, s *Store, name string) {
	t.Helper()
	require.NoError(t, s.InsertDomain(context.Background(), tracker.Domain{
		Name:          name,
		ScrapeEnabled: true,
	}))
}

func seedKeyword(t *testing.T, s *Store, k tracker.Keyword) int64 {
	t.Helper()
	id, err := s.InsertKeyword(context.Background(), k)
	require.NoError(t, err)
	return id
}

func TestStore_InsertAndGetKeyword(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedDomain(t, s, "x.com")
	id := seedKeyword(t, s, tracker.Keyword{
		Keyword: "widgets",
		Device:  tracker.DeviceDesktop,
		Country: "US",
		Domain:  "x.com",
	})

	k, err := s.GetKeyword(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "widgets", k.Keyword)
	require.Equal(t, 0, k.Position)
	require.False(t, k.Updating)
	require.Nil(t, k.UpdateStarted)
	require.Nil(t, k.LastUpdateErr)

	_, err = s.GetKeyword(context.Background(), 9999)
	require.ErrorIs(t, err, tracker.ErrKeywordNotFound)
}

func TestStore_MarkUpdatingIsBulkByFilter(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedDomain(t, s, "x.com")
	id1 := seedKeyword(t, s, tracker.Keyword{Keyword: "a", Device: tracker.DeviceDesktop, Country: "US", Domain: "x.com"})
	id2 := seedKeyword(t, s, tracker.Keyword{Keyword: "b", Device: tracker.DeviceDesktop, Country: "US", Domain: "x.com"})

	started := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.MarkUpdating(context.Background(), []int64{id1, id2}, started))

	for _, id := range []int64{id1, id2} {
		k, err := s.GetKeyword(context.Background(), id)
		require.NoError(t, err)
		require.True(t, k.Updating)
		require.NotNil(t, k.UpdateStarted)
		require.True(t, k.UpdateStarted.Equal(started))
	}
}

func TestStore_ApplyRefreshSuccessClearsFlagsInOneWrite(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedDomain(t, s, "x.com")
	id := seedKeyword(t, s, tracker.Keyword{Keyword: "a", Device: tracker.DeviceDesktop, Country: "US", Domain: "x.com"})
	require.NoError(t, s.MarkUpdating(context.Background(), []int64{id}, time.Now()))

	now := time.Now().UTC().Truncate(time.Second)
	day := tracker.DayKey(now)
	require.NoError(t, s.ApplyRefresh(context.Background(), tracker.RefreshOutcome{
		KeywordID:   id,
		Scraped:     true,
		Position:    7,
		History:     map[string]int{day: 7},
		LastResult:  []tracker.SerpResult{{Title: "A", URL: "https://x.com", Position: 7}},
		MapPackTop3: true,
		FinishedAt:  now,
	}))

	k, err := s.GetKeyword(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 7, k.Position)
	require.Equal(t, map[string]int{day: 7}, k.History)
	require.Len(t, k.LastResult, 1)
	require.True(t, k.MapPackTop3)
	require.False(t, k.Updating)
	require.Nil(t, k.UpdateStarted)
	require.Nil(t, k.LastUpdateErr)
}

func TestStore_ApplyRefreshFailureKeepsRankState(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedDomain(t, s, "x.com")
	id := seedKeyword(t, s, tracker.Keyword{
		Keyword: "a", Device: tracker.DeviceDesktop, Country: "US", Domain: "x.com",
		Position: 4, History: map[string]int{"2026-01-01": 4},
	})
	require.NoError(t, s.MarkUpdating(context.Background(), []int64{id}, time.Now()))

	failedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.ApplyRefresh(context.Background(), tracker.RefreshOutcome{
		KeywordID: id,
		Scraped:   false,
		Error: &tracker.UpdateError{
			Date:      failedAt,
			Error:     "provider serpapi returned status 500",
			ScraperID: "serpapi",
		},
		FinishedAt: failedAt,
	}))

	k, err := s.GetKeyword(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, 4, k.Position)
	require.Equal(t, map[string]int{"2026-01-01": 4}, k.History)
	require.False(t, k.Updating)
	require.Nil(t, k.UpdateStarted)
	require.NotNil(t, k.LastUpdateErr)
	require.Equal(t, "serpapi", k.LastUpdateErr.ScraperID)
}

func TestStore_UpdateErrorFalseSentinelRoundTrip(t *testing.T) {
	t.Parallel()

	require.Nil(t, unmarshalUpdateError("false"))
	require.Nil(t, unmarshalUpdateError(""))

	sentinel, err := marshalUpdateError(nil)
	require.NoError(t, err)
	require.Equal(t, "false", sentinel)
}

func TestStore_SiblingDesktop(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedDomain(t, s, "x.com")
	desktopID := seedKeyword(t, s, tracker.Keyword{
		Keyword: "widgets", Device: tracker.DeviceDesktop, Country: "US", Domain: "x.com",
		MapPackTop3: true,
	})
	mobileID := seedKeyword(t, s, tracker.Keyword{
		Keyword: "widgets", Device: tracker.DeviceMobile, Country: "US", Domain: "x.com",
	})

	mobile, err := s.GetKeyword(context.Background(), mobileID)
	require.NoError(t, err)

	sibling, err := s.SiblingDesktop(context.Background(), mobile)
	require.NoError(t, err)
	require.Equal(t, desktopID, sibling.ID)
	require.True(t, sibling.MapPackTop3)

	lonely := tracker.Keyword{ID: 999, Keyword: "other", Country: "US", Domain: "x.com"}
	_, err = s.SiblingDesktop(context.Background(), lonely)
	require.ErrorIs(t, err, tracker.ErrKeywordNotFound)
}

func TestStore_AggregateDomainStats(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedDomain(t, s, "x.com")
	seedKeyword(t, s, tracker.Keyword{Keyword: "a", Device: tracker.DeviceDesktop, Country: "US", Domain: "x.com", Position: 3, MapPackTop3: true})
	seedKeyword(t, s, tracker.Keyword{Keyword: "b", Device: tracker.DeviceDesktop, Country: "US", Domain: "x.com", Position: 7})
	// Unranked keywords are excluded from the average, not counted as zero.
	seedKeyword(t, s, tracker.Keyword{Keyword: "c", Device: tracker.DeviceDesktop, Country: "US", Domain: "x.com", Position: 0})

	avg, mapPack, err := s.AggregateDomainStats(context.Background(), "x.com")
	require.NoError(t, err)
	require.Equal(t, 5, avg)
	require.Equal(t, 1, mapPack)
}

func TestStore_AggregateDomainStatsEmptyDomain(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedDomain(t, s, "empty.com")

	avg, mapPack, err := s.AggregateDomainStats(context.Background(), "empty.com")
	require.NoError(t, err)
	require.Zero(t, avg)
	require.Zero(t, mapPack)
}

func TestStore_ClearStaleUpdating(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedDomain(t, s, "x.com")
	staleID := seedKeyword(t, s, tracker.Keyword{Keyword: "a", Device: tracker.DeviceDesktop, Country: "US", Domain: "x.com"})
	freshID := seedKeyword(t, s, tracker.Keyword{Keyword: "b", Device: tracker.DeviceDesktop, Country: "US", Domain: "x.com"})

	require.NoError(t, s.MarkUpdating(context.Background(), []int64{staleID}, time.Now().Add(-2*time.Hour)))
	require.NoError(t, s.MarkUpdating(context.Background(), []int64{freshID}, time.Now()))

	n, err := s.ClearStaleUpdating(context.Background(), time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	stale, err := s.GetKeyword(context.Background(), staleID)
	require.NoError(t, err)
	require.False(t, stale.Updating)

	fresh, err := s.GetKeyword(context.Background(), freshID)
	require.NoError(t, err)
	require.True(t, fresh.Updating)
}

func TestStore_DomainRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.InsertDomain(context.Background(), tracker.Domain{
		Name:          "x.com",
		ScrapeEnabled: true,
		ScraperID:     "valueserp",
		APIKey:        "domain-key",
		BusinessName:  "X Inc",
	}))

	d, err := s.GetDomain(context.Background(), "x.com")
	require.NoError(t, err)
	require.Equal(t, "x-com", d.Slug)
	require.True(t, d.ScrapeEnabled)
	require.Equal(t, "valueserp", d.ScraperID)

	require.NoError(t, s.UpdateDomainStats(context.Background(), "x.com", 5, 2))
	d, err = s.GetDomain(context.Background(), "x.com")
	require.NoError(t, err)
	require.Equal(t, 5, d.AvgPosition)
	require.Equal(t, 2, d.MapPackKeywords)

	_, err = s.GetDomain(context.Background(), "missing.com")
	require.ErrorIs(t, err, tracker.ErrDomainNotFound)
}
