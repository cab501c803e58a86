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

// SpaceSerp integrates spaceserp.com. Parallel-capable and map-pack
// capable; local results arrive under a "local_results" array.
type SpaceSerp struct{}

func (s *SpaceSerp) ID() string { return "spaceserp" }
func (s *SpaceSerp) Name() string { return "SpaceSerp" }
func (s *SpaceSerp) SupportsParallel() bool { return true }
func (s *SpaceSerp) SupportsMapPack() bool { return true }
func (s *SpaceSerp) SupportsCityLocation() bool { return true }
func (s *SpaceSerp) AllowedCountries() []string { return nil }
func (s *SpaceSerp) Timeout() time.Duration { return 0 }

func (s *SpaceSerp) BuildRequest(k tracker.Keyword, set tracker.Settings) (Request, error) {
	country := locale.Normalize(k.Country, s.AllowedCountries())
	loc := locale.Lookup(country)

	q := url.Values{}
	q.Set("apiKey", set.APIKey)
	q.Set("q", cleanTerm(k.Keyword))
	q.Set("domain", loc.DomainID)
	q.Set("gl", strings.ToLower(country))
	q.Set("hl", loc.Language)
	q.Set("device", string(k.Device))
	q.Set("pageSize", "100")
	q.Set("resultBlocks", "organic_results,local_results")
	if k.Location != "" {
		q.Set("location", cleanTerm(k.Location))
	}
	return Request{URL: "https://api.spaceserp.com/google/search?" + q.Encode()}, nil
}

func (s *SpaceSerp) DecodeResponse(in DecodeInput) (DecodeOutput, error) {
	parsed, err := payload(in)
	if err != nil {
		return DecodeOutput{}, err
	}
	root, ok := parsed.(map[string]any)
	if !ok {
		return DecodeOutput{}, fmt.Errorf("spaceserp: unexpected payload shape")
	}
	if msg := stringField(root, "message"); msg != "" && root["organic_results"] == nil {
		return DecodeOutput{}, fmt.Errorf("spaceserp: %s", msg)
	}

	entries, hasSection := mappack.ExtractLocalResults(parsed)
	return DecodeOutput{
		OrganicResults:  organicFromList(root["organic_results"]),
		LocalResults:    localFromEntries(entries),
		MapPackTop3:     hasSection && mappack.DetectInEntries(in.Keyword.Domain, entries, in.Settings.BusinessName),
		HasLocalSection: hasSection,
	}, nil
}
