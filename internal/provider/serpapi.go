package provider

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ranklens/ranklens/internal/locale"
	"github.com/ranklens/ranklens/internal/mappack"
	"github.com/ranklens/ranklens/internal/tracker"
)

// SerpAPI integrates serpapi.com. It tolerates concurrent calls and its
// payloads carry a local results block, so map-pack detection runs here.
type SerpAPI struct{}

func (s *SerpAPI) ID() string { return "serpapi" }
func (s *SerpAPI) Name() string { return "SerpApi" }
func (s *SerpAPI) SupportsParallel() bool { return true }
func (s *SerpAPI) SupportsMapPack() bool { return true }
func (s *SerpAPI) SupportsCityLocation() bool { return true }
func (s *SerpAPI) AllowedCountries() []string { return nil }
func (s *SerpAPI) Timeout() time.Duration { return 0 }

// BuildRequest assembles the search URL. Keyword and location text is
// decoded first so pre-encoded input is never double-encoded.
func (s *SerpAPI) BuildRequest(k tracker.Keyword, set tracker.Settings) (Request, error) {
	country := locale.Normalize(k.Country, s.AllowedCountries())
	loc := locale.Lookup(country)

	q := url.Values{}
	q.Set("q", cleanTerm(k.Keyword))
	q.Set("api_key", set.APIKey)
	q.Set("engine", "google")
	q.Set("google_domain", loc.DomainID)
	q.Set("gl", strings.ToLower(country))
	q.Set("hl", loc.Language)
	q.Set("device", string(k.Device))
	q.Set("num", "100")
	if k.Location != "" {
		q.Set("location", fmt.Sprintf("%s,%s", cleanTerm(k.Location), loc.Name))
	}
	return Request{URL: "https://serpapi.com/search.json?" + q.Encode()}, nil
}

// DecodeResponse extracts organic results and local pack membership.
func (s *SerpAPI) DecodeResponse(in DecodeInput) (DecodeOutput, error) {
	v, err := payload(in)
	if err != nil {
		return DecodeOutput{}, err
	}
	root, ok := v.(map[string]any)
	if !ok {
		return DecodeOutput{}, fmt.Errorf("serpapi: unexpected payload shape")
	}
	if msg := stringField(root, "error"); msg != "" {
		return DecodeOutput{}, fmt.Errorf("serpapi: %s", msg)
	}

	organic := organicFromList(root["organic_results"])
	entries, hasSection := mappack.ExtractLocalResults(v)
	return DecodeOutput{
		OrganicResults:  organic,
		LocalResults:    localFromEntries(entries),
		MapPackTop3:     hasSection && mappack.DetectInEntries(in.Keyword.Domain, entries, in.Settings.BusinessName),
		HasLocalSection: hasSection,
	}, nil
}
