// Package tracker defines core types shared across subsystems.
package tracker

import (
	"time"
)

// Device identifies the device class a keyword is tracked for.
type Device string

// Device values persisted with each keyword.
const (
	DeviceDesktop Device = "desktop"
	DeviceMobile  Device = "mobile"
)

// SerpResult is one organic search result returned by a provider.
type SerpResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Position int    `json:"position"`
}

// UpdateError records the last failed refresh attempt for a keyword.
// A nil *UpdateError means the last attempt succeeded; the store
// persists that as the literal false sentinel.
type UpdateError struct {
	Date      time.Time `json:"date"`
	Error     string    `json:"error"`
	ScraperID string    `json:"scraperId"`
}

// Keyword is the unit of tracking work: one (domain, keyword, device,
// country) combination plus its mutable rank state.
type Keyword struct {
	ID       int64  `json:"id"`
	Keyword  string `json:"keyword"`
	Device   Device `json:"device"`
	Country  string `json:"country"`
	Location string `json:"location,omitempty"`
	Domain   string `json:"domain"`

	Position      int               `json:"position"`
	History       map[string]int    `json:"history"`
	LastResult    []SerpResult      `json:"lastResult"`
	LocalResults  []SerpResult      `json:"localResults,omitempty"`
	MapPackTop3   bool              `json:"mapPackTop3"`
	LastUpdated   time.Time         `json:"lastUpdated"`
	LastUpdateErr *UpdateError      `json:"lastUpdateError,omitempty"`
	Updating      bool              `json:"updating"`
	UpdateStarted *time.Time        `json:"updateStarted,omitempty"`
	Added         time.Time         `json:"added"`
	Tags          []string          `json:"tags,omitempty"`
	SettingsExtra map[string]string `json:"settings,omitempty"`
}

// Domain is the aggregation root and scrape-policy holder for keywords.
type Domain struct {
	Name          string `json:"domain"`
	Slug          string `json:"slug"`
	ScrapeEnabled bool   `json:"scrapeEnabled"`

	// Per-domain provider override; empty fields defer to global settings.
	ScraperID    string `json:"scraperId,omitempty"`
	APIKey       string `json:"-"`
	BusinessName string `json:"businessName,omitempty"`

	// Derived stats, recomputed from keyword rows after every batch.
	AvgPosition     int `json:"avgPosition"`
	MapPackKeywords int `json:"mapPackKeywords"`
}

// Settings is the effective scraper configuration for one batch: the
// global configuration merged with any per-domain override.
type Settings struct {
	ScraperID    string
	APIKey       string
	BusinessName string
	RetryEnabled bool
	ScrapeDelay  time.Duration
	Timeout      time.Duration
}

// Merge returns a copy of s with the domain's provider override applied.
func (s Settings) Merge(d Domain) Settings {
	out := s
	if d.ScraperID != "" {
		out.ScraperID = d.ScraperID
		out.APIKey = d.APIKey
	}
	if d.BusinessName != "" {
		out.BusinessName = d.BusinessName
	}
	return out
}

// RefreshOutcome is the single-write payload applied to a keyword after
// a refresh attempt. It is built exactly once per attempt and consumed
// by exactly one KeywordStore.ApplyRefresh call; every field the attempt
// touched travels in it, including the unconditional clearing of the
// in-flight pair.
type RefreshOutcome struct {
	KeywordID    int64
	Scraped      bool
	Position     int
	History      map[string]int
	LastResult   []SerpResult
	LocalResults []SerpResult
	MapPackTop3  bool
	Error        *UpdateError
	FinishedAt   time.Time
}

// Succeeded reports whether the attempt scraped a result without error.
func (o RefreshOutcome) Succeeded() bool {
	return o.Scraped && o.Error == nil
}
