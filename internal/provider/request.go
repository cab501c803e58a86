package provider

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ranklens/ranklens/internal/tracker"
)

// cleanTerm URL-decodes text that may already be percent-encoded so the
// request builder encodes it exactly once. Text that fails to decode is
// assumed to be plain and returned as-is.
func cleanTerm(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}

// RedactKey replaces the value of the named query parameter with "***"
// so request URLs can be logged without leaking API keys.
func RedactKey(rawURL string, params ...string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<unparseable url>"
	}
	q := u.Query()
	for _, p := range params {
		if q.Has(p) {
			q.Set(p, "***")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// payload returns the parsed response body, honoring a pre-parsed value
// when the caller supplies one.
func payload(in DecodeInput) (any, error) {
	if in.Parsed != nil {
		return in.Parsed, nil
	}
	var v any
	if err := json.Unmarshal(in.Body, &v); err != nil {
		return nil, fmt.Errorf("parse provider response: %w", err)
	}
	return v, nil
}

// organicFromList converts a provider's organic result array into
// SerpResults, tolerating the field-name variations seen across APIs.
func organicFromList(v any) []tracker.SerpResult {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]tracker.SerpResult, 0, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		r := tracker.SerpResult{
			Title:    stringField(obj, "title"),
			URL:      firstStringField(obj, "link", "url"),
			Position: intField(obj, "position"),
		}
		if r.Position == 0 {
			r.Position = i + 1
		}
		out = append(out, r)
	}
	return out
}

// localFromEntries converts extracted local results entries into
// SerpResults. Local entries use map-specific field names (website,
// rank) alongside the usual organic ones.
func localFromEntries(entries []map[string]any) []tracker.SerpResult {
	out := make([]tracker.SerpResult, 0, len(entries))
	for i, obj := range entries {
		r := tracker.SerpResult{
			Title:    stringField(obj, "title"),
			URL:      firstStringField(obj, "website", "link", "url"),
			Position: firstIntField(obj, "position", "rank"),
		}
		if r.Position == 0 {
			r.Position = i + 1
		}
		out = append(out, r)
	}
	return out
}

// PositionFor finds the target domain's rank within results, 0 when
// unranked.
func PositionFor(results []tracker.SerpResult, domain string) int {
	target := normalizeResultHost(domain)
	for _, r := range results {
		if normalizeResultHost(r.URL) == target {
			return r.Position
		}
	}
	return 0
}

func normalizeResultHost(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Hostname() != "" {
			s = u.Hostname()
		}
	} else if i := strings.IndexAny(s, "/?"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimPrefix(s, "www.")
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func firstStringField(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringField(obj, k); s != "" {
			return s
		}
	}
	return ""
}

func firstIntField(obj map[string]any, keys ...string) int {
	for _, k := range keys {
		if n := intField(obj, k); n != 0 {
			return n
		}
	}
	return 0
}

func intField(obj map[string]any, key string) int {
	switch n := obj[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
