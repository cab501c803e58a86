package tracker

import (
	"context"
	"errors"
	"time"
)

// ErrKeywordNotFound is returned by stores when a keyword row does not exist.
var ErrKeywordNotFound = errors.New("keyword not found")

// ErrDomainNotFound is returned by stores when a domain row does not exist.
var ErrDomainNotFound = errors.New("domain not found")

// KeywordStore persists keyword rows and their rank state.
//
// Loaded Keyword values are snapshots: bulk by-filter updates such as
// MarkUpdating do not refresh values already in memory, so callers
// needing fresh state must re-fetch.
type KeywordStore interface {
	GetKeyword(ctx context.Context, id int64) (Keyword, error)
	ListKeywords(ctx context.Context, domain string) ([]Keyword, error)
	ListKeywordsByIDs(ctx context.Context, ids []int64) ([]Keyword, error)

	// SiblingDesktop returns the desktop keyword tracking the same
	// (domain, keyword, country) as k, for the mobile map-pack fallback.
	SiblingDesktop(ctx context.Context, k Keyword) (Keyword, error)

	// MarkUpdating sets the in-flight pair on all given ids in one
	// by-filter update.
	MarkUpdating(ctx context.Context, ids []int64, startedAt time.Time) error

	// ApplyRefresh applies a refresh outcome as a single row write.
	// The in-flight pair is cleared by this write regardless of outcome.
	ApplyRefresh(ctx context.Context, outcome RefreshOutcome) error
}

// DomainStore persists domains and their derived stats.
type DomainStore interface {
	GetDomain(ctx context.Context, name string) (Domain, error)
	ListDomains(ctx context.Context) ([]Domain, error)
	UpdateDomainStats(ctx context.Context, name string, avgPosition, mapPackKeywords int) error
}

// RetryQueue is the persisted set of keyword IDs eligible for a later
// re-scrape after a failed attempt.
type RetryQueue interface {
	Add(id int64) error
	Remove(id int64) error
	RemoveBatch(ids []int64) error
	List() ([]int64, error)
	Clear() error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
