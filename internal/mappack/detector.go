// Package mappack detects whether a domain appears in the top three
// local (map pack) results of a provider payload.
//
// Provider payloads disagree on where local results live and what the
// entries look like, so extraction is schema-tolerant: known key names
// are tried first, then a depth-bounded generic search. A payload with
// no local results anywhere is a negative answer, never an error.
package mappack

import (
	"net/url"
	"strings"
)

// maxSearchDepth bounds the generic recursive search for a local
// results array so an unrelated deeply nested array is never matched.
const maxSearchDepth = 3

// directKeys are the commonly seen locations of local results, tried in
// order before the generic search.
var directKeys = [][]string{
	{"local_results"},
	{"localResults"},
	{"local_map", "places"},
	{"places"},
	{"places_results"},
	{"local_results", "places"},
}

// positionKeys are tried in order to rank a local entry; the first
// present wins, else the entry's array index + 1 is used.
var positionKeys = []string{"position", "rank", "index", "block_position"}

// urlKeys are tried in order to find a URL-like field on an entry.
// Dotted names address one level of nesting.
var urlKeys = []string{
	"website", "link", "url", "domain",
	"links.website", "gps_coordinates.website",
}

// titleKeys are tried in order for the business-name fallback.
var titleKeys = []string{"title", "name", "business_name", "place_name"}

// hintFragments mark a key as potentially holding local results during
// the generic search.
var hintFragments = []string{"local", "map", "place"}

// Detect reports whether domain (or, failing a URL match, businessName)
// appears in the top three local results of payload.
func Detect(domain string, payload any, businessName string) bool {
	entries, ok := ExtractLocalResults(payload)
	if !ok {
		return false
	}
	return DetectInEntries(domain, entries, businessName)
}

// DetectInEntries runs the top-3 match against an already extracted
// local results list.
func DetectInEntries(domain string, entries []map[string]any, businessName string) bool {
	target := normalizeHost(domain)
	if target == "" {
		return false
	}
	for _, entry := range top3(entries) {
		if matchesDomain(entry, target) {
			return true
		}
		if businessName != "" && matchesTitle(entry, businessName) {
			return true
		}
	}
	return false
}

// ExtractLocalResults finds the local results array in an arbitrary
// provider payload. The second return is false when no local results
// section exists at all, which callers distinguish from an existing but
// empty section.
func ExtractLocalResults(payload any) ([]map[string]any, bool) {
	root, ok := payload.(map[string]any)
	if !ok {
		if arr := toEntryList(payload); arr != nil {
			return arr, true
		}
		return nil, false
	}

	for _, path := range directKeys {
		if arr, found := lookupPath(root, path); found {
			return arr, true
		}
	}
	return searchNested(root, 0)
}

func lookupPath(m map[string]any, path []string) ([]map[string]any, bool) {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	if arr := toEntryList(cur); arr != nil {
		return arr, true
	}
	// An empty array is still a present section.
	if raw, ok := cur.([]any); ok && len(raw) == 0 {
		return []map[string]any{}, true
	}
	return nil, false
}

// searchNested walks the payload looking for the first plausible local
// results array under a key whose name hints at local/map/place data.
func searchNested(m map[string]any, depth int) ([]map[string]any, bool) {
	if depth > maxSearchDepth {
		return nil, false
	}
	for key, value := range m {
		if keyHintsLocal(key) {
			if arr := toEntryList(value); arr != nil && plausible(arr) {
				return arr, true
			}
			if raw, ok := value.([]any); ok && len(raw) == 0 {
				return []map[string]any{}, true
			}
		}
		if child, ok := value.(map[string]any); ok {
			if arr, found := searchNested(child, depth+1); found {
				return arr, found
			}
		}
	}
	return nil, false
}

func keyHintsLocal(key string) bool {
	k := strings.ToLower(key)
	for _, frag := range hintFragments {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}

// plausible reports whether the array looks like local business
// entries rather than some unrelated nested list.
func plausible(entries []map[string]any) bool {
	if len(entries) == 0 {
		return false
	}
	for _, field := range []string{"title", "link", "website", "data_id"} {
		if _, ok := entries[0][field]; ok {
			return true
		}
	}
	return false
}

func toEntryList(v any) []map[string]any {
	raw, ok := v.([]any)
	if !ok || len(raw) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		out = append(out, obj)
	}
	return out
}

// top3 sorts entries by their position-like field ascending and returns
// at most the first three.
func top3(entries []map[string]any) []map[string]any {
	type ranked struct {
		rank  int
		entry map[string]any
	}
	rankedEntries := make([]ranked, 0, len(entries))
	for i, e := range entries {
		rankedEntries = append(rankedEntries, ranked{rank: entryRank(e, i), entry: e})
	}
	// Insertion sort keeps the original order for equal ranks.
	for i := 1; i < len(rankedEntries); i++ {
		for j := i; j > 0 && rankedEntries[j].rank < rankedEntries[j-1].rank; j-- {
			rankedEntries[j], rankedEntries[j-1] = rankedEntries[j-1], rankedEntries[j]
		}
	}
	n := len(rankedEntries)
	if n > 3 {
		n = 3
	}
	out := make([]map[string]any, 0, n)
	for _, r := range rankedEntries[:n] {
		out = append(out, r.entry)
	}
	return out
}

func entryRank(entry map[string]any, index int) int {
	for _, key := range positionKeys {
		if v, ok := entry[key]; ok {
			if n, ok := toInt(v); ok {
				return n
			}
		}
	}
	return index + 1
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

func matchesDomain(entry map[string]any, target string) bool {
	for _, key := range urlKeys {
		raw := lookupField(entry, key)
		if raw == "" {
			continue
		}
		host := normalizeHost(raw)
		if host == "" || isGoogleHost(host) {
			// Maps redirect links point at Google, not the business.
			continue
		}
		if host == target {
			return true
		}
	}
	return false
}

func matchesTitle(entry map[string]any, businessName string) bool {
	for _, key := range titleKeys {
		if title := lookupField(entry, key); title != "" {
			if strings.EqualFold(strings.TrimSpace(title), strings.TrimSpace(businessName)) {
				return true
			}
		}
	}
	return false
}

func lookupField(entry map[string]any, key string) string {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) == 2 {
		child, ok := entry[parts[0]].(map[string]any)
		if !ok {
			return ""
		}
		return lookupField(child, parts[1])
	}
	s, _ := entry[key].(string)
	return s
}

// normalizeHost reduces a URL or bare hostname to a comparable host:
// lowercase, no scheme, no path, no www prefix.
func normalizeHost(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil && u.Hostname() != "" {
			s = u.Hostname()
		}
	} else if i := strings.IndexAny(s, "/?"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "www.")
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	return s
}

func isGoogleHost(host string) bool {
	return host == "google.com" || strings.HasPrefix(host, "google.") ||
		strings.Contains(host, ".google.")
}
