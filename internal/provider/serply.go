package provider

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ranklens/ranklens/internal/locale"
	"github.com/ranklens/ranklens/internal/tracker"
)

// Serply integrates serply.io. Rate limits force sequential scraping,
// and the API only serves a handful of countries; other countries fall
// back to the default.
type Serply struct{}

func (s *Serply) ID() string { return "serply" }
func (s *Serply) Name() string { return "Serply" }
func (s *Serply) SupportsParallel() bool { return false }
func (s *Serply) SupportsMapPack() bool { return false }

func (s *Serply) SupportsCityLocation() bool { return false }

func (s *Serply) AllowedCountries() []string {
	return []string{"US", "CA", "IE", "GB", "FR", "DE", "SE", "IN", "JP", "SG"}
}

func (s *Serply) Timeout() time.Duration { return 0 }

func (s *Serply) BuildRequest(k tracker.Keyword, set tracker.Settings) (Request, error) {
	country := locale.Normalize(k.Country, s.AllowedCountries())
	loc := locale.Lookup(country)

	q := url.Values{}
	q.Set("q", cleanTerm(k.Keyword))
	q.Set("num", "100")
	q.Set("gl", strings.ToLower(country))
	q.Set("hl", loc.Language)

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("X-Api-Key", set.APIKey)
	headers.Set("X-User-Agent", serplyDeviceHeader(k.Device))

	return Request{
		URL:     "https://api.serply.io/v1/search/" + q.Encode(),
		Headers: headers,
	}, nil
}

func serplyDeviceHeader(d tracker.Device) string {
	if d == tracker.DeviceMobile {
		return "mobile"
	}
	return "desktop"
}

func (s *Serply) DecodeResponse(in DecodeInput) (DecodeOutput, error) {
	parsed, err := payload(in)
	if err != nil {
		return DecodeOutput{}, err
	}
	root, ok := parsed.(map[string]any)
	if !ok {
		return DecodeOutput{}, fmt.Errorf("serply: unexpected payload shape")
	}
	results := root["results"]
	if results == nil {
		results = root["result"]
	}
	if results == nil {
		return DecodeOutput{}, fmt.Errorf("serply: no results in payload")
	}
	return DecodeOutput{OrganicResults: organicFromList(results)}, nil
}
